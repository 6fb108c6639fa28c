package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/client"
	"github.com/lazypower/newswire/internal/importer"
	"github.com/spf13/cobra"
)

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Ingest items from a JSONL file",
	Long: "Each line is one JSON record. The \"kind\" field selects feed, social or manual " +
		"(the default). Blank lines and lines starting with # are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := buildEngine(db)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	report, err := importer.ImportFile(ctx, eng.Pipeline, args[0])
	if report != nil {
		fmt.Printf("%d lines: %d created, %d existing, %d failed\n",
			report.Lines, report.Created, report.Existing, len(report.Failed))
		for _, f := range report.Failed {
			fmt.Fprintf(os.Stderr, "  %v\n", f)
		}
	}
	return err
}

// --- classify command ---

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify text against the category table",
	Long:  "Classify the given text, or stdin when no text is given. Nothing is stored.",
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	table, err := loadTable()
	if err != nil {
		return err
	}
	if table == nil {
		table = classify.DefaultTable()
	}
	c := classify.New(table)

	res := c.Classify(text)
	fmt.Printf("top: %s\n", res.Top)
	fmt.Printf("categories: %s\n", strings.Join(res.Categories, ", "))

	hits := c.Hits(text)
	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return hits[names[i]] > hits[names[j]] })
	for _, name := range names {
		fmt.Printf("  %-16s %d\n", name, hits[name])
	}
	return nil
}

// --- backfill command ---

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reclassify every stored item against the current category table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		eng, err := buildEngine(db)
		if err != nil {
			return err
		}
		ctx, cancel := interruptContext()
		defer cancel()

		n, err := eng.Pipeline.Backfill(ctx)
		fmt.Printf("%d items reclassified\n", n)
		return err
	},
}

// --- rebuild command ---

var rebuildDevice string

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild device interest profiles",
	RunE:  runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := buildEngine(db)
	if err != nil {
		return err
	}
	ctx, cancel := interruptContext()
	defer cancel()

	if rebuildDevice == "" {
		n, err := eng.Profiles.RebuildAll(ctx)
		fmt.Printf("%d device profiles rebuilt\n", n)
		return err
	}

	d, err := db.GetDevice(ctx, rebuildDevice)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("device %q not found", rebuildDevice)
	}
	vec, err := eng.Profiles.Build(ctx, rebuildDevice)
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		fmt.Println("No interactions in the lookback window; profile cleared.")
		return nil
	}
	names := make([]string, 0, len(vec))
	for name := range vec {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return vec[names[i]] > vec[names[j]] })
	for _, name := range names {
		fmt.Printf("  %-16s %.3f\n", name, vec[name])
	}
	return nil
}

// --- feed command ---

var (
	feedDevice string
	feedLimit  int
	feedRemote bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the ranked feed for a device",
	RunE:  runFeed,
}

func runFeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if feedRemote {
		feed, err := client.New(serverURL).Feed(ctx, feedDevice, feedLimit)
		if err != nil {
			return err
		}
		entries := make([]feedLine, len(feed.Items))
		for i, e := range feed.Items {
			entries[i] = feedLine{e.Score, e.Item.Title, e.Item.TopCategory, e.Item.PublishedAt}
		}
		printFeed(feed.Personalized, entries)
		return nil
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := buildEngine(db)
	if err != nil {
		return err
	}
	feed, err := eng.Ranker.Feed(ctx, feedDevice, feedLimit)
	if err != nil {
		return err
	}
	entries := make([]feedLine, len(feed.Items))
	for i, r := range feed.Items {
		entries[i] = feedLine{r.Score, r.Item.Title, r.Item.TopCategory, r.Item.PublishedTime()}
	}
	printFeed(feed.Personalized, entries)
	return nil
}

type feedLine struct {
	score     float64
	title     string
	category  string
	published time.Time
}

func printFeed(personalized bool, entries []feedLine) {
	if len(entries) == 0 {
		fmt.Println("No items.")
		return
	}
	mode := "recency"
	if personalized {
		mode = "personalized"
	}
	fmt.Printf("## Feed (%s)\n\n", mode)
	for i, e := range entries {
		if personalized {
			fmt.Printf("%d. [%.3f] %s\n", i+1, e.score, e.title)
		} else {
			fmt.Printf("%d. %s\n", i+1, e.title)
		}
		fmt.Printf("   %s | %s\n", e.category, e.published.Format(time.RFC822))
	}
}

// remote returns a client for the server, failing fast when it is down.
func remote(ctx context.Context) (*client.Client, error) {
	c := client.New(serverURL)
	if !c.Healthy(ctx) {
		return nil, fmt.Errorf("newswire server not reachable (is `newswire serve` running?)")
	}
	return c, nil
}

// --- post command ---

var serverURL string

var postCmd = &cobra.Command{
	Use:   "post <file.json|->",
	Short: "Submit one item record to a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

func runPost(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := remote(ctx)
	if err != nil {
		return err
	}
	resp, err := c.PostItem(ctx, data)
	if err != nil {
		return err
	}
	status := "existing"
	if resp.Created {
		status = "created"
	}
	fmt.Printf("%s item %d [%s] %s\n", status, resp.Item.ID, resp.Item.TopCategory, resp.Item.Title)
	return nil
}

// --- task command ---

var taskCmd = &cobra.Command{
	Use:       "task <name>",
	Short:     "Queue a maintenance task on a running server",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{taskProfileRebuild, taskBackfill},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c, err := remote(ctx)
		if err != nil {
			return err
		}
		if err := c.RunTask(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s queued\n", args[0])
		return nil
	},
}

func init() {
	rebuildCmd.Flags().StringVarP(&rebuildDevice, "device", "d", "", "rebuild a single device")

	feedCmd.Flags().StringVarP(&feedDevice, "device", "d", "", "device id (empty for the recency feed)")
	feedCmd.Flags().IntVarP(&feedLimit, "limit", "n", 20, "maximum number of items")
	feedCmd.Flags().BoolVar(&feedRemote, "remote", false, "fetch the feed from a running server")
	feedCmd.Flags().StringVar(&serverURL, "server", "", "server URL for --remote")

	postCmd.Flags().StringVar(&serverURL, "server", "", "server URL (default $NEWSWIRE_URL or http://127.0.0.1:37780)")
	taskCmd.Flags().StringVar(&serverURL, "server", "", "server URL (default $NEWSWIRE_URL or http://127.0.0.1:37780)")
}
