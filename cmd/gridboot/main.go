package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/eleven-am/gridboot"
	"github.com/eleven-am/gridboot/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func main() {
	s, err := gridboot.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stdout, s.LogLevel, s.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	app := fx.New(
		fx.Supply(s),
		fx.Supply(logger),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With("component", "fx")}
		}),
		fx.StartTimeout(s.StartTimeout),
		fx.StopTimeout(s.StopTimeout),
		gridboot.Module(),
	)

	// Run exits non-zero when the start sequence fails and blocks until
	// SIGINT or SIGTERM otherwise.
	app.Run()
}
