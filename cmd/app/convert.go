package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cycleuser/audiblez/internal/audio"
	"github.com/cycleuser/audiblez/internal/chapters"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/service"
	"github.com/cycleuser/audiblez/internal/tts"
)

type convertFlags struct {
	lang   string
	voice  string
	speed  int
	manual bool
	out    string
}

func (f *convertFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.lang, "lang", "l", "", "Narration language (en-gb, en-us, fr-fr, ja, ko, cmn)")
	cmd.Flags().StringVarP(&f.voice, "voice", "v", "", "Voice name")
	cmd.Flags().IntVarP(&f.speed, "speed", "s", 0, "Speed 50..200, 100 is normal")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output directory (default: next to the book)")
}

// request fills unset flags from the configuration.
func (f *convertFlags) request(e *env, source string) (service.Request, error) {
	units := f.speed
	if units == 0 {
		units = e.cfg.DefaultSpeed
	}
	speed, err := service.SpeedFromControl(units)
	if err != nil {
		return service.Request{}, err
	}
	out := f.out
	if out == "" {
		out = e.cfg.OutputDir
	}
	return service.Request{
		Source:    source,
		OutputDir: out,
		Lang:      withDefault(f.lang, e.cfg.DefaultLang),
		Voice:     withDefault(f.voice, e.cfg.DefaultVoice),
		Speed:     speed,
		Manual:    f.manual,
	}, nil
}

func (e *env) converter(synth tts.Synthesizer, opts ...service.Option) *service.Converter {
	return service.NewConverter(synth, audio.NewPackager(e.cfg.FFmpegPath), opts...)
}

func convertCmd(e *env) *cobra.Command {
	flags := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert <book.epub>",
		Short: "Convert one EPUB file into an audiobook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(e, args[0])
			if err != nil {
				return err
			}
			synth, err := e.synthesizer()
			if err != nil {
				return err
			}
			conv := e.converter(synth, service.WithPicker(chapters.TerminalPicker{Title: "Select chapters to narrate"}))
			return runTask(cmd.Context(), conv, req)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&flags.manual, "manual", "p", false, "Pick chapters interactively")
	return cmd
}

// runTask runs one conversion in the background and logs its events.
func runTask(ctx context.Context, conv *service.Converter, req service.Request) error {
	log := logger.FromContext(ctx).With("book", filepath.Base(req.Source))
	task := service.Start(ctx, conv, req)

	for ev := range task.Events() {
		switch ev.Kind {
		case service.EventProgress:
			if ev.Percent >= 0 {
				log.Info("progress", "percent", ev.Percent, "eta", service.FormatETA(ev.ETA))
			}
		case service.EventDone:
			log.Info(ev.Message)
		case service.EventFailed:
			log.Error("conversion failed", "error", ev.Err)
		}
	}

	res, err := task.Wait()
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		log.Warn("some chapters failed, run again to retry them", "failed", res.Failed)
	}
	return nil
}

func batchCmd(e *env) *cobra.Command {
	flags := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Convert every EPUB file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := findBooks(args[0])
			if err != nil {
				return err
			}
			synth, err := e.synthesizer()
			if err != nil {
				return err
			}
			return runBatch(cmd.Context(), e.converter(synth), flags, e, books)
		},
	}
	flags.register(cmd)
	return cmd
}

func findBooks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var books []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".epub") {
			books = append(books, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(books)
	if len(books) == 0 {
		return nil, fmt.Errorf("no .epub files in %s", dir)
	}
	return books, nil
}

// runBatch converts books one after another. A failed book is logged and the
// next one started; cancellation stops the whole batch.
func runBatch(ctx context.Context, conv *service.Converter, flags *convertFlags, e *env, books []string) error {
	log := logger.FromContext(ctx)
	failed := 0
	for i, book := range books {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("converting book", "book", filepath.Base(book), "n", i+1, "of", len(books))
		req, err := flags.request(e, book)
		if err != nil {
			return err
		}
		if err := runTask(ctx, conv, req); err != nil {
			if service.Canceled(err) {
				return err
			}
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d books failed", failed, len(books))
	}
	return nil
}

func voicesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the TTS engine and the supported languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			synth, err := e.synthesizer()
			if err != nil {
				return err
			}
			voices, err := synth.Voices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Languages: %s\n", strings.Join(tts.Languages, ", "))
			fmt.Fprintf(out, "Voices (%s):\n", e.cfg.Engine)
			for _, v := range voices {
				fmt.Fprintf(out, "  %s\n", v)
			}
			return nil
		},
	}
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
