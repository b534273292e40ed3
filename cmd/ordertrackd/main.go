// Command ordertrackd polls a vendor mailbox for order-status emails,
// reconciles them against the order database, and serves a small admin
// API for triggering and inspecting processing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/blob"
	"github.com/nhle/ordertrack/internal/config"
	"github.com/nhle/ordertrack/internal/credential"
	handler "github.com/nhle/ordertrack/internal/handler/http"
	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/notify"
	"github.com/nhle/ordertrack/internal/pdftext"
	"github.com/nhle/ordertrack/internal/pipeline"
	"github.com/nhle/ordertrack/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "ordertrack.yaml", "path to config file")
	savePassword := flag.Bool("save-password", false,
		"store the configured mailbox password in the OS keyring and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	if *savePassword {
		if cfg.Mailbox.Password == "" {
			return errors.New("no mailbox password configured to save")
		}
		if err := credential.StoreMailboxPassword(cfg.Mailbox.Password); err != nil {
			return err
		}
		log.Info("mailbox password saved to keyring")
		return nil
	}

	// Fall back to the OS keyring when no password is configured.
	if cfg.Mailbox.Password == "" {
		password, err := credential.MailboxPassword()
		if err != nil {
			log.Warn("no mailbox password in config or keyring", zap.Error(err))
		} else {
			cfg.Mailbox.Password = password
		}
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blob.NewFSStore(cfg.AttachmentDir)
	if err != nil {
		return err
	}

	client := mailbox.NewClient(cfg.Mailbox, cfg.Poll)
	parser := mailbox.NewParser()

	reconciler := pipeline.NewReconciler(
		st, blobs, pdftext.NewPDFExtractor(), notify.NewLogSink(log),
		log, cfg.Extract.ContextWindow,
	)
	poller := pipeline.New(client, parser, reconciler, st, cfg.Poll, log)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := client.Validate(ctx); err != nil {
		log.Warn("mailbox validation failed, continuing", zap.Error(err))
	}

	go poller.Run(ctx)

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: handler.NewRouter(
			handler.NewProcessingHandler(poller, st, log), log,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin API listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
