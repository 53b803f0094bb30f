package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reminder API over HTTP",
		Long: `Start the HTTP API and the event dispatcher.

Events posted to /api/v1/events are evaluated one at a time against the
waiting reminders. Notifications are written to stdout, logs to stderr.
Prometheus metrics are exposed at /metrics.

SIGINT or SIGTERM stops the listener, finishes queued events and exits.

Examples:
  nudge serve
  nudge serve --addr 127.0.0.1:9090 --db ~/nudge.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	addr := sess.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	metrics := engine.DefaultMetrics()
	ctrl := sess.controller(metrics)
	d := sess.dispatcher(ctrl, cmd.OutOrStdout(), metrics)

	srv := server.New(server.Config{
		Addr:       addr,
		Store:      sess.store,
		Dispatcher: d,
		Controller: ctrl,
		Logger:     sess.logger,
		Gatherer:   prometheus.DefaultGatherer,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The dispatcher outlives the listener so accepted events finish.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	g.Go(func() error {
		err := d.Run(dispatchCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sess.cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		d.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	sess.logger.Info("server stopped")
	return nil
}
