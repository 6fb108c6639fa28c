package cli

import (
	"fmt"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/delivery"
	"github.com/lazypower/newswire/internal/engine"
	"github.com/lazypower/newswire/internal/llm"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/store"
)

// openDB opens the configured database, defaulting to ~/.newswire/newswire.db.
func openDB() (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// loadTable returns the configured category table, or nil for the
// embedded default.
func loadTable() (classify.Table, error) {
	if cfg.Classifier.TablePath == "" {
		return nil, nil
	}
	t, err := classify.LoadTableFile(cfg.Classifier.TablePath)
	if err != nil {
		return nil, fmt.Errorf("load category table: %w", err)
	}
	return t, nil
}

// buildEngine wires an engine over db. Notifications go to a logging
// sender; a misconfigured LLM provider disables enrichment with a warning.
func buildEngine(db *store.DB) (*engine.Engine, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}

	log := logging.Component("cli")
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Msg("LLM not configured, title generation falls back to text")
		client = nil
	} else if client != nil {
		log.Info().Str("provider", cfg.LLM.Provider).Msg("LLM enrichment enabled")
	}

	sender := &delivery.LogSender{Log: logging.Component("delivery"), Batch: cfg.Notify.BatchSize}
	return engine.New(engine.Deps{
		Store:  db,
		Table:  table,
		LLM:    client,
		Sender: sender,
	}, cfg), nil
}
