package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/starlogs/starlogs/internal/api"
	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/engine"
	"github.com/starlogs/starlogs/internal/monitor"
	"github.com/starlogs/starlogs/internal/storage"
	"github.com/starlogs/starlogs/internal/storage/memory"
	"github.com/starlogs/starlogs/pkg/core"
)

var watchFromEnd bool

func init() {
	watchCmd.Flags().BoolVar(&watchFromEnd, "from-end", false, "skip existing content and only follow new lines")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Follow a Game.log and record its events",
	Long: `Replays the log from the start, then follows appended lines until
interrupted. Without a path the configured gameLog is used.
SIGHUP reloads the config and reprocesses the file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := viper.GetString("gameLog")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no log path given and gameLog is not configured")
	}
	mode := core.ModeReplayThenFollow
	if watchFromEnd {
		mode = core.ModeLive
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engCfg := config.GetEngineConfig()
	eng := engine.New(engCfg, config.GetTailerConfig(), a.dispatch, a.session, a.Logger)

	backend, err := createStorageBackend(a, config.GetStorageConfig())
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	opts := []dispatcher.Option{dispatcher.Logged()}
	if engCfg.SubscriberBuffer > 0 {
		opts = append(opts, dispatcher.Buffered(engCfg.SubscriberBuffer))
	}
	storage.Attach(a.dispatch, "storage", backend, opts...)
	// the dispatcher must drain into the backend before it closes
	defer func() {
		drainThenClose(a.dispatch, backend, "storage", a.Logger)
		exp, ok := backend.(storage.Exporter)
		if !ok || exp.ExportedFilePath() == "" {
			return
		}
		a.Logger.Info("Session exported", "path", exp.ExportedFilePath())
		// only the JSON report is understood by the server
		m, ok := backend.(*memory.Backend)
		if !ok || !config.GetAPIConfig().Upload {
			return
		}
		if s, ok := m.Session(); ok {
			uploadReport(context.Background(), a, exp.ExportedFilePath(), api.MetadataFor(s, len(m.Events()), ""))
		}
	}()

	infl := connectInflux(ctx, a)
	if infl != nil {
		defer drainThenClose(a.dispatch, infl, "influx", a.Logger)
		eng.Subscribe("influx", infl.Handler(func() string {
			s, _ := a.session.Current()
			return s.ID
		}))
	}

	if err := eng.Start(ctx, path, mode); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		// the engine ending ends the watch
		defer cancel()
		return waitEngine(gctx, eng)
	})

	if mcfg := config.GetMonitorConfig(); mcfg.Enabled {
		mon := monitor.NewService(monitor.Dependencies{
			Source:     eng,
			Influx:     infl,
			StatusFile: mcfg.StatusFile,
			Interval:   mcfg.Interval,
			Logger:     a.Logger,
		})
		g.Go(func() error { return mon.Run(gctx) })
	}

	g.Go(func() error { return reloadOnHangup(gctx, a, eng) })

	a.Logger.Info("Watching log", "path", path, "mode", mode)
	err = g.Wait()
	// drain subscribers while the sinks are still open
	a.dispatch.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.Logger.Info("Stopped watching", "path", path, "error", err)
	return err
}

// drainThenClose closes the dispatcher, which waits for buffered handlers,
// and only then closes the sink they write to.
func drainThenClose(d *dispatcher.Dispatcher, sink io.Closer, name string, logger *slog.Logger) {
	d.Close()
	if err := sink.Close(); err != nil {
		logger.Error("Closing sink", "sink", name, "error", err)
	}
}

// waitEngine returns once the engine's worker exits for good. A run
// replaced by Reprocess does not count.
func waitEngine(ctx context.Context, eng *engine.Engine) error {
	for {
		err := eng.Wait()
		if ctx.Err() != nil || !eng.Running() {
			return err
		}
	}
}

// reloadOnHangup rereads the config on SIGHUP, applies the engine settings
// and reprocesses the file from the start.
func reloadOnHangup(ctx context.Context, a *app, eng *engine.Engine) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := config.Load(configDir); err != nil {
				a.Logger.Warn("Reloading config", "error", err)
			}
			eng.SetConfig(config.GetEngineConfig())
			a.Logger.Info("Reprocessing log after SIGHUP")
			if err := eng.Reprocess(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("Reprocess failed", "error", err)
			}
		}
	}
}
