package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cycleuser/audiblez/internal/config"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/network"
	"github.com/cycleuser/audiblez/internal/tts"
)

type rootFlags struct {
	logLevel string
	logJSON  bool
	engine   string
	envFile  string
}

// env is what every command gets after the root pre-run.
type env struct {
	cfg *config.Config
	log logger.Logger
}

func RootCmd() *cobra.Command {
	flags := &rootFlags{}
	e := &env{}

	root := &cobra.Command{
		Use:           "audiblez",
		Short:         "Convert EPUB books into M4B audiobooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Write logs as JSON")
	root.PersistentFlags().StringVar(&flags.engine, "engine", "", "TTS engine: kokoro or piper")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to a .env file")

	root.AddCommand(
		convertCmd(e),
		batchCmd(e),
		voicesCmd(e),
		botCmd(e),
	)

	return root
}

func (e *env) setup(cmd *cobra.Command, flags *rootFlags) error {
	var files []string
	if flags.envFile != "" {
		files = append(files, flags.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if flags.engine != "" {
		cfg.Engine = flags.engine
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logJSON {
		cfg.LogJSON = true
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		Output:     os.Stderr,
		JSON:       cfg.LogJSON,
		TimeFormat: "15:04:05",
	})
	logger.SetDefault(log)
	if !cfg.EnvFileLoaded {
		log.Debug(".env file not found, using process environment")
	}

	e.cfg = cfg
	e.log = log
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
	return nil
}

// synthesizer builds the configured TTS engine.
func (e *env) synthesizer() (tts.Synthesizer, error) {
	switch e.cfg.Engine {
	case config.EnginePiper:
		return tts.NewPiper(e.cfg.PiperBinary, e.cfg.PiperModelDir)
	default:
		client, err := network.NewHTTPClient(e.cfg.TTSProxy, e.cfg.TTSTimeout)
		if err != nil {
			return nil, fmt.Errorf("tts http client: %w", err)
		}
		return tts.NewKokoroClient(tts.KokoroConfig{
			BaseURL:    e.cfg.TTSURL,
			HTTPClient: client,
			RateLimit:  e.cfg.TTSRateLimit,
			Retries:    e.cfg.TTSRetries,
		}), nil
	}
}
