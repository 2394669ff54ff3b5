package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/logging"
	intOtel "github.com/starlogs/starlogs/internal/otel"
	"github.com/starlogs/starlogs/internal/session"
)

// app holds the process wide logging, telemetry and dispatch setup shared
// by the commands.
type app struct {
	start    time.Time
	logsDir  string
	level    string
	session  *session.Context
	slog     *logging.SlogManager
	Logger   *slog.Logger
	logFile  *os.File
	otel     *intOtel.Provider
	dispatch *dispatcher.Dispatcher

	closers []io.Closer // closed in reverse order
}

// newApp creates the log directory and file, the OTel provider, the slog
// handler chain and the dispatcher, in that order: the dispatcher's
// instruments bind to the meter provider installed by the OTel setup.
func newApp() (*app, error) {
	a := &app{
		start:   time.Now(),
		logsDir: viper.GetString("logsDir"),
		level:   viper.GetString("logLevel"),
		session: session.NewContext(),
		slog:    logging.NewSlogManager(),
	}

	if err := os.MkdirAll(a.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	logFile, err := os.Create(logging.LogFilePath(a.logsDir, "starlogs", a.start))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	a.logFile = logFile
	a.closers = append(a.closers, logFile)

	otelCfg := config.GetOTelConfig()
	provCfg := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		otelFile, err := os.Create(logging.LogFilePath(a.logsDir, "starlogs.otel", a.start))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating OTel log file: %w", err)
		}
		a.closers = append(a.closers, otelFile)
		provCfg.LogWriter = otelFile
	}
	a.otel, err = intOtel.New(provCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing OTel: %w", err)
	}

	a.slog.SetContextProvider(a.session.LogAttrs)
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Graylog disabled: %v\n", err)
		} else {
			a.closers = append(a.closers, w)
			a.slog.AddHandler(logging.NewGelfHandler(w, a.level))
		}
	}
	a.slog.Setup(io.MultiWriter(os.Stderr, logFile), a.level, a.otel.LoggerProvider())
	a.Logger = a.slog.Logger()

	a.dispatch, err = dispatcher.New(logging.NewDispatcherLogger(a.Zerolog("dispatcher")))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	return a, nil
}

// Zerolog returns a zerolog logger for component writing to the log file.
func (a *app) Zerolog(component string) zerolog.Logger {
	return logging.NewZerolog(a.logFile, a.level, component)
}

// Close drains the dispatcher, reports its totals and releases the logging
// sinks. It is safe to call more than once.
func (a *app) Close() {
	if a.dispatch != nil {
		a.dispatch.Close()
		a.dispatch = nil
		a.logDispatchTotals()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.slog.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Flushing logs: %v\n", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutting down OTel: %v\n", err)
		}
		a.otel = nil
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

func (a *app) logDispatchTotals() {
	if a.otel == nil {
		return
	}
	rm, err := a.otel.Collect(context.Background())
	if err != nil {
		a.Logger.Warn("Collecting dispatcher metrics", "error", err)
		return
	}
	delivered, _ := intOtel.SumInt64(rm, "dispatcher.messages.delivered")
	dropped, _ := intOtel.SumInt64(rm, "dispatcher.messages.dropped")
	failed, _ := intOtel.SumInt64(rm, "dispatcher.messages.failed")
	a.Logger.Info("Dispatcher closed", "delivered", delivered, "dropped", dropped, "failed", failed)
}
