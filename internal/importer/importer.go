// Package importer bulk-loads items from JSONL files through the ingestion
// pipeline.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/source"
	"github.com/lazypower/newswire/internal/store"
	"github.com/lazypower/newswire/internal/validation"
)

// Ingester accepts built candidates. *engine.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, b source.Builder) (*store.Item, bool, error)
}

// LineError reports a line that could not be imported.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e LineError) Unwrap() error { return e.Err }

// Report summarizes an import run.
type Report struct {
	Lines    int
	Created  int
	Existing int
	Failed   []LineError
}

// header carries the discriminator present on every line.
type header struct {
	Kind string `json:"kind"`
}

// ParseLine decodes one JSONL record into a builder. The "kind" field
// selects feed, social or manual; it defaults to manual.
func ParseLine(line []byte) (source.Builder, error) {
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	var b source.Builder
	switch store.SourceKind(strings.ToLower(h.Kind)) {
	case store.SourceFeed:
		b = &source.FeedEntry{}
	case store.SourceSocial:
		b = &source.SocialPost{}
	case store.SourceManual, "":
		b = &source.ManualEntry{}
	default:
		return nil, fmt.Errorf("unknown kind %q", h.Kind)
	}
	if err := json.Unmarshal(line, b); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", b.Kind(), err)
	}
	if err := validation.Struct(b); err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", b.Kind(), err)
	}
	return b, nil
}

// ImportFile imports every record in the JSONL file at path.
func ImportFile(ctx context.Context, ing Ingester, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return Import(ctx, ing, f)
}

// Import reads JSONL records from r and ingests them in order. Malformed
// or rejected lines are recorded in the report and skipped; only read
// errors and cancellation stop the run.
func Import(ctx context.Context, ing Ingester, r io.Reader) (*Report, error) {
	log := logging.Ctx(ctx, logging.Component("import"))
	report := &Report{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Lines++

		b, err := ParseLine([]byte(line))
		if err != nil {
			report.Failed = append(report.Failed, LineError{Line: lineNo, Err: err})
			continue
		}
		_, created, err := ing.Ingest(ctx, b)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			report.Failed = append(report.Failed, LineError{Line: lineNo, Err: err})
			continue
		}
		if created {
			report.Created++
		} else {
			report.Existing++
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("scan import file: %w", err)
	}

	log.Info().
		Int("lines", report.Lines).
		Int("created", report.Created).
		Int("existing", report.Existing).
		Int("failed", len(report.Failed)).
		Msg("import finished")
	return report, nil
}
