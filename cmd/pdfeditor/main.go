// Command pdfeditor runs the PDF overlay compositing service: upload a
// document, query its geometry, submit positioned text/image overlays,
// download the composed result.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/dbopen"
	"github.com/kamiladigital/pdf-editor/observability"
	"github.com/kamiladigital/pdf-editor/pdfcodec"
	"github.com/kamiladigital/pdf-editor/server"
	"github.com/kamiladigital/pdf-editor/store"
)

func main() {
	cfg := server.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := server.LoadConfig(os.Args[1])
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyEnv(cfg)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Document registry.
	st, err := store.Open(cfg.DBPath, cfg.DataDir)
	if err != nil {
		logger.Error("store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Observability DB, separate from the registry to avoid write contention.
	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		logger.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	events := observability.NewEventLogger(obsDB, "pdfeditor")

	// Compositing core.
	codec := pdfcodec.New(pdfcodec.Config{
		MaxDocumentBytes: cfg.MaxUploadBytes(),
		MaxPages:         cfg.MaxPages,
		Logger:           logger,
	})
	comp := compose.New(compose.Config{Codec: codec, Logger: logger})

	srv := server.New(cfg, st, codec, comp, events, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Retention sweep for composed outputs.
	go sweepLoop(ctx, st, cfg.OutputTTL(), logger)

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		httpSrv.Shutdown(shutCtx)
	}()

	logger.Info("pdfeditor listening", "addr", cfg.Listen, "data_dir", cfg.DataDir)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
	logger.Info("pdfeditor stopped")
}

func sweepLoop(ctx context.Context, st *store.Store, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.SweepOutputs(ctx, ttl)
			if err != nil {
				logger.Warn("output sweep", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("output sweep", "removed", n)
			}
		}
	}
}

func applyEnv(cfg *server.Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
