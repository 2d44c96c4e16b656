package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dicom-object-store/app"
)

const shutdownTimeout = 30 * time.Second

// Server provides an http.Server.
type Server struct {
	*http.Server
	app *app.App
}

// NewServer creates and configures an APIServer serving all application routes.
func NewServer(a *app.App) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Port),
		Handler:           New(a),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return &Server{Server: srv, app: a}
}

// Start runs ListenAndServe on the http.Server with graceful shutdown. The
// deleted instance reaper runs alongside until the server stops.
func (srv *Server) Start() error {
	logger := srv.app.Logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		if err := srv.app.Delete.Run(ctx, srv.app.Config.Store.StaleCreatingAfter); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("cleanup reaper stopped")
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case serveErr = <-errc:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-reaperDone
	logger.Info("server gracefully stopped")
	return serveErr
}
