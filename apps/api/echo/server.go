package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
	"github.com/abinesh-lmsace/pulse/core/reaction"
)

type (
	// PassRunner triggers a reminder pass on demand.
	PassRunner interface {
		RunReminderPass(ctx context.Context) (automation.PassSummary, error)
	}

	Options struct {
		Address        string
		DisableReqLogs bool
		InstanceSvc    *automation.Service
		Ledger         automation.LedgerRepository
		Runner         PassRunner
		ReactionSvc    *reaction.Service
		Logger         core.Logger
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		conf *core.Config
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(conf *core.Config, opts *Options) Server {
	s := &server{
		opts: opts,
		conf: conf,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerInstanceAPI(v1, s.opts.InstanceSvc, s.opts.Ledger)
	registerReminderAPI(v1, s.opts.Runner)
	registerReactionAPI(s.app, s.opts.ReactionSvc)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Pulse API!")
}
