package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/newswire/internal/engine"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/scheduler"
	"github.com/lazypower/newswire/internal/server"
	"github.com/lazypower/newswire/internal/supervisor"
	"github.com/spf13/cobra"
)

const (
	taskProfileRebuild = "profile-rebuild"
	taskBackfill       = "classify-backfill"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and maintenance scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("serve")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := buildEngine(db)
	if err != nil {
		return err
	}

	sched, err := newScheduler(eng)
	if err != nil {
		return err
	}

	var tasks server.TaskQueue
	if sched != nil {
		tasks = sched
	}
	srv := server.New(db, eng, tasks, VersionString(), server.Options{
		WriteRate:      cfg.Server.WriteRate,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := supervisor.New("newswire", logging.Component("supervisor"), supervisor.Config{})
	sup.Add(server.NewService(httpServer, 10*time.Second))
	if sched != nil {
		sup.Add(sched)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", cfg.ListenAddr()).
		Str("db", db.Path).
		Strs("categories", eng.Classifier.Categories()).
		Bool("notify", eng.Targeter != nil).
		Msg("newswire serving")

	err = sup.Serve(ctx)
	log.Info().Msg("shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newScheduler registers the maintenance tasks, or returns nil when the
// schedule is disabled.
func newScheduler(eng *engine.Engine) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}
	sched, err := scheduler.New(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	tasks := []scheduler.Task{
		{
			Name: taskProfileRebuild,
			Spec: cfg.Schedule.ProfileRebuild,
			Run: func(ctx context.Context) error {
				n, err := eng.Profiles.RebuildAll(ctx)
				logging.Ctx(ctx, logging.Component("scheduler")).Info().Int("devices", n).Msg("profiles rebuilt")
				return err
			},
		},
		{
			Name: taskBackfill,
			Spec: cfg.Schedule.Backfill,
			Run: func(ctx context.Context) error {
				n, err := eng.Pipeline.Backfill(ctx)
				logging.Ctx(ctx, logging.Component("scheduler")).Info().Int("changed", n).Msg("categories backfilled")
				return err
			},
		},
	}
	for _, t := range tasks {
		if err := sched.Register(t); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
