package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cycleuser/audiblez/internal/db"
	"github.com/cycleuser/audiblez/internal/httpapi"
	"github.com/cycleuser/audiblez/internal/service"
	"github.com/cycleuser/audiblez/internal/telegram"
)

func botCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot and the library HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), e)
		},
	}
}

func runBot(ctx context.Context, e *env) error {
	cfg, log := e.cfg, e.log
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	store, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("database ready", "path", cfg.SQLitePath, "storage", cfg.StorageDir)

	if n, err := store.FailInterrupted(ctx, "interrupted by restart"); err != nil {
		log.Warn("cannot mark interrupted jobs", "error", err)
	} else if n > 0 {
		log.Info("marked interrupted jobs as failed", "count", n)
	}

	synth, err := e.synthesizer()
	if err != nil {
		return err
	}
	conv := e.converter(synth, service.WithRecorder(store))

	bot, err := telegram.NewBot(cfg.TelegramToken, conv, synth, store, telegram.Options{
		StorageDir: cfg.StorageDir,
		MiniAppURL: cfg.MiniAppURL,
		MaxUpload:  cfg.MaxUploadBytes,
		Defaults: telegram.Settings{
			Lang:  cfg.DefaultLang,
			Voice: cfg.DefaultVoice,
			Speed: cfg.DefaultSpeed,
		},
	}, log.With("component", "telegram"))
	if err != nil {
		return err
	}

	api := httpapi.New(store, cfg.TelegramToken, log.With("component", "http"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("bot started, send /start in Telegram")
		if err := bot.Start(ctx); err != nil {
			return err
		}
		if ctx.Err() == nil {
			return errors.New("telegram update loop stopped")
		}
		return nil
	})

	return g.Wait()
}
