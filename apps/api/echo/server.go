package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/user"
)

type (
	Options struct {
		DisableReqLogs bool
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		app        *echo.Echo
		serverErrs chan error
		shutdown   chan os.Signal

		progressSvc *progress.Service
		attemptSvc  *attempt.Service
		gradingSvc  *grading.Service
		reconciler  *reconcile.Reconciler
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	progressSvc *progress.Service,
	attemptSvc *attempt.Service,
	gradingSvc *grading.Service,
	reconciler *reconcile.Reconciler,
	opts ...Options,
) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(progressSvc, "progressSvc"),
		vala.IsNotNil(attemptSvc, "attemptSvc"),
		vala.IsNotNil(gradingSvc, "gradingSvc"),
		vala.IsNotNil(reconciler, "reconciler"),
	).CheckAndPanic()

	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	s := &Server{
		conf:        conf,
		logger:      logger,
		app:         echo.New(),
		serverErrs:  make(chan error, 1),
		shutdown:    make(chan os.Signal, 1),
		progressSvc: progressSvc,
		attemptSvc:  attemptSvc,
		gradingSvc:  gradingSvc,
		reconciler:  reconciler,
	}
	s.setup(opt)
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s
}

func (s *Server) setup(opts Options) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.SignalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.conf))

	registerProgressAPI(v1, jwt, s.progressSvc)
	registerAttemptAPI(v1, jwt, s.attemptSvc)
	registerGradingAPI(v1, jwt, s.gradingSvc)
	registerAdminAPI(v1, jwt, s.reconciler)
}

// Start listens on the configured address; failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.serverErrs <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.serverErrs
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to gracefully stop.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // a shutdown is already pending
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

// pathIdentity binds the ":id" path param and the caller identity.
func pathIdentity(ctx echo.Context) (string, user.Identity, error) {
	id, err := contextIdentity(ctx)
	if err != nil {
		return "", user.Identity{}, err
	}
	return ctx.Param("id"), id, nil
}
