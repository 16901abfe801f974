package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/document"
	"github.com/sells-group/statement-flow/internal/pipeline"
	"github.com/sells-group/statement-flow/internal/stage"
	"github.com/sells-group/statement-flow/internal/store"
	"github.com/sells-group/statement-flow/pkg/anthropic"
	"github.com/sells-group/statement-flow/pkg/gemini"
)

// pipelineEnv holds the store, blob store and pipeline needed by the
// run/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Blobs    blob.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the stores, builds the
// capability clients and assembles the Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := initBlobs()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	aiClient := anthropic.NewClient(cfg.Anthropic.Key,
		anthropic.WithRateLimit(cfg.Anthropic.RequestsPerSecond),
	)
	imageClient, err := gemini.NewClient(ctx, cfg.Gemini.Key,
		gemini.WithRateLimit(cfg.Gemini.RequestsPerSecond),
	)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init gemini client")
	}

	backoff := stage.Backoff(cfg.Pipeline)
	pre := document.NewPreprocessor(document.NewPdfToText(cfg.OCR.PdfToTextPath), cfg.OCR.ScannedMinChars)

	p := pipeline.New(cfg.Pipeline, st, blobs, pre,
		stage.NewExtractor(aiClient, cfg.Anthropic, backoff),
		stage.NewGenerator(imageClient, cfg.Gemini, cfg.Pipeline.MinDiagramBytes, backoff),
		stage.NewVerifier(aiClient, cfg.Anthropic, backoff),
	)

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("extraction_model", cfg.Anthropic.ExtractionModel),
		zap.String("image_model", cfg.Gemini.ImageModel),
		zap.Float64("accuracy_threshold", cfg.Pipeline.AccuracyThreshold),
	)

	return &pipelineEnv{Store: st, Blobs: blobs, Pipeline: p}, nil
}

// initStore opens the configured run store without migrating it.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "statement-flow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the run store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initBlobs builds the configured blob store.
func initBlobs() (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "local":
		return blob.NewLocal(cfg.Blob.Dir, cfg.Blob.BaseURL, cfg.Blob.SigningKey)
	case "ftp":
		return blob.NewFTP(cfg.Blob.FTP)
	default:
		return nil, eris.Errorf("unsupported blob driver: %s", cfg.Blob.Driver)
	}
}

// urlTTL is the lifetime of signed diagram URLs.
func urlTTL() time.Duration {
	if cfg == nil || cfg.Blob.URLTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(cfg.Blob.URLTTLMinutes) * time.Minute
}
