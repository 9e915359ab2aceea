package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratojets/notevox/internal/config"
	"github.com/stratojets/notevox/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		keyboard    bool
	)

	flag.StringVar(&configPath, "config", "notevox.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&keyboard, "keyboard", true, "Read note triggers from stdin")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if keyboard {
		go keyboardLoop(ctx, rt, logger)
	}

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// keyboardLoop turns stdin into note triggers: digits play notes 48-57,
// lowercase letters play notes 60-85, and an uppercase P toggles pitch
// shifting. Everything else is ignored.
func keyboardLoop(ctx context.Context, rt *runtime.Runtime, logger *slog.Logger) {
	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			return
		}
		r, _, err := reader.ReadRune()
		if err != nil {
			return
		}

		if r == 'P' {
			enabled := rt.TogglePitchShift()
			logger.Info("pitch shift toggled from keyboard", slog.Bool("enabled", enabled))
			continue
		}

		note, ok := noteForKey(r)
		if !ok {
			continue
		}
		if err := rt.Trigger(ctx, note); err != nil {
			logger.Warn("keyboard trigger failed", slog.Int("note", note), slog.String("error", err.Error()))
		}
	}
}

func noteForKey(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return 48 + int(r-'0'), true
	case r >= 'a' && r <= 'z':
		return 60 + int(r-'a'), true
	default:
		return 0, false
	}
}
