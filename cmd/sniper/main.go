package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polysniper/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "live", "run mode: live|paper|replay")
	history := flag.String("history", "", "path to market history JSON (replay mode)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polysniper starting",
		"config", *configPath,
		"run_mode", *mode,
		"engine_mode", cfg.Engine.Mode,
		"poll_interval", cfg.PollInterval(),
	)

	switch *mode {
	case "live", "paper": // live ejecuta fills simulados: paper es un alias
		runLive(cfg)
	case "replay":
		runReplay(cfg, *history)
	default:
		slog.Error("unknown run mode", "mode", *mode)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
