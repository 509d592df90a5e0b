package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/intercall/internal/meta"
)

// ShutdownTimeout bounds the graceful shutdown of serve.
const ShutdownTimeout = 15 * time.Second

// ServeOptions holds the serve flags.
type ServeOptions struct {
	*RootOptions
	Addr string

	// IDGenerator overrides the worker ID and inner cookie generator.
	IDGenerator meta.IDGenerator

	// ready receives the bound address once the listener is up.
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the module pipeline over HTTP",
		Long: `Serve the module pipeline over HTTP on the cluster listen address.

Routes:
  /api/...   the module pipeline
  /metrics   Prometheus metrics
  /healthz   database ping

Example:
  intercall serve --config intercall.yaml
  intercall serve --addr 127.0.0.1:0 -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default: cluster.listen from config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	gen := opts.IDGenerator
	if gen == nil {
		gen = meta.UUIDv7Generator{}
	}
	rt, err := newRuntime(opts.RootOptions, logger, gen)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
	}()

	addr := opts.Addr
	if addr == "" {
		addr = rt.cfg.Cluster.Listen.Address()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           newServerMux(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", ln.Addr().String(), "worker", rt.workerID)
		if opts.ready != nil {
			opts.ready <- ln.Addr().String()
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		rt.client.Close()
		if err := rt.client.Drain(shutdownCtx); err != nil {
			return fmt.Errorf("drain queue: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("stopped")
	return nil
}

// newServerMux routes /metrics and /healthz and sends everything else
// through the app pipeline.
func newServerMux(rt *runtime) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := rt.store.Ping(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(rt.app)
	return r
}
