package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"group-chat-service/internal/storage"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	h             handler
	afterShutdown []func()
}

// NewServer assembles all operation handlers behind the POST+JSON and
// logging middlewares and returns a Server ready to Start. Provided options
// are applied before the built-in middleware wrapping, so TimeoutHandler and
// friends see the raw handlers.
func NewServer(logger *zap.SugaredLogger, store *storage.Store, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		h: handler{
			logger: logger,
			store:  store,
			parsers: parsers{
				addMemberPool:       fastjson.ParserPool{},
				createMessagePool:   fastjson.ParserPool{},
				messagesByGroupPool: fastjson.ParserPool{},
			},
		},
	}

	c := &config{
		httpServer: &http.Server{Addr: "0.0.0.0:9000"},
		handlers: map[string]http.Handler{
			"/users/add":    http.HandlerFunc(srv.h.createUser),
			"/users/get":    http.HandlerFunc(srv.h.listUsers),
			"/groups/add":   http.HandlerFunc(srv.h.createGroup),
			"/groups/get":   http.HandlerFunc(srv.h.listGroups),
			"/members/add":  http.HandlerFunc(srv.h.addMember),
			"/messages/add": http.HandlerFunc(srv.h.createMessage),
			"/messages/get": http.HandlerFunc(srv.h.messagesByGroup),
		},
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	builtin := []Option{
		applyEnforcePostJson(),
		applyLog(logger.Desugar()),
		registerHandlers(http.HandlerFunc(srv.h.health)),
	}
	for _, opt := range builtin {
		opt.apply(c)
	}

	srv.httpServer = c.httpServer
	srv.afterShutdown = c.afterShutdown

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	s.logger.Info("Closing store")
	s.h.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
