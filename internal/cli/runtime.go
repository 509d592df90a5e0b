package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/builtin"
	"github.com/roach88/intercall/internal/config"
	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/observability"
	"github.com/roach88/intercall/internal/queue"
	"github.com/roach88/intercall/internal/store"
)

// runtime is the process wiring shared by serve, call and publish: the
// database, the module registry, the app pipeline and the queue client.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *meta.Registry
	app      *app.App
	client   *queue.Client
	metrics  *observability.Metrics
	workerID string
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newRuntime wires the process from the config at opts.Config. Errors are
// ExitErrors with ExitCommandError.
func newRuntime(opts *RootOptions, logger *slog.Logger, gen meta.IDGenerator) (*runtime, error) {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid module list", err)
	}
	if err := builtin.AddTo(registry); err != nil {
		return nil, WrapExitError(ExitCommandError, "register builtin module", err)
	}

	st, err := store.Open(cfg.Database.Path, store.WithMaxOpenConns(cfg.Database.MaxOpenConns))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		metrics:  observability.New(),
		workerID: gen.Generate(),
	}
	innerCookie := cfg.EnsureInnerCookie(gen)

	rt.app = app.New(
		app.WithModules(registry),
		app.WithDriver(st),
		app.WithLogger(logger),
		app.WithCookieKeys(cfg.CookieKeyBytes()...),
	)

	var dispatcher queue.Dispatcher
	switch cfg.Queue.Mode {
	case config.QueueModeLocal:
		dispatcher = queue.NewLocalDispatcher(rt.app)
	case config.QueueModeNetwork:
		dispatcher = queue.NewHTTPDispatcher(cfg.Cluster.Listen.Hostname, cfg.Cluster.Listen.Port, innerCookie)
	default:
		st.Close()
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown queue mode %q", cfg.Queue.Mode))
	}
	rt.client = queue.NewClient(registry, dispatcher,
		queue.WithLogger(logger),
		queue.WithMetrics(rt.metrics),
	)

	router := app.NewRouter()
	builtin.New(builtin.WithPublisher(rt.client)).Mount(router)

	rt.app.Use(
		app.RequestLogger(logger),
		app.Instrument(rt.metrics),
		app.InnerAccess(innerCookie),
		router.Middleware(),
	)

	logger.Debug("runtime ready",
		"worker", rt.workerID,
		"env", cfg.Env,
		"queue_mode", cfg.Queue.Mode,
		"database", cfg.Database.Path,
		"modules", len(registry.Modules()))
	return rt, nil
}

// Close refuses new tasks and closes the database. Callers drain the
// queue first.
func (rt *runtime) Close() error {
	rt.client.Close()
	return rt.store.Close()
}
