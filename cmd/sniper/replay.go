package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/replay"
)

// runReplay ejecuta el replay determinista sobre un archivo de históricos y
// imprime el reporte completo.
func runReplay(cfg *config.Config, historyPath string) {
	if historyPath == "" {
		slog.Error("replay mode requires -history")
		os.Exit(1)
	}

	histories, err := loadHistories(historyPath)
	if err != nil {
		slog.Error("failed to load history", "err", err, "path", historyPath)
		os.Exit(1)
	}

	slog.Info("replay starting",
		"markets", len(histories),
		"initial_balance", cfg.Engine.InitialBalance,
		"engine_mode", cfg.Engine.Mode,
	)

	result, err := replay.Run(cfg.Params(), cfg.Engine.InitialBalance, histories)
	if err != nil {
		slog.Error("replay failed", "err", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole()
	if err := notifier.NotifyBacktest(context.Background(), *result); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// loadHistories lee el archivo JSON con los mercados históricos y sus ticks.
func loadHistories(path string) ([]replay.MarketHistory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var histories []replay.MarketHistory
	if err := json.Unmarshal(data, &histories); err != nil {
		return nil, err
	}
	return histories, nil
}
