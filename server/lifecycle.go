package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/sym"
)

// shutdownTimeout bounds the HTTP drain on Stop
const shutdownTimeout = 10 * time.Second

// startBackgroundServices starts the scheduler loop, the expiry sweeper,
// the idempotency janitor and the config watcher
func (s *Server) startBackgroundServices() error {
	if err := s.scheduler.Start(); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	if s.sweeper != nil {
		s.sweeper.Start()
	}
	if s.janitor != nil {
		s.janitor.Start()
	}
	if s.watcher != nil {
		s.watcher.Start()
		s.logger.Infow("Config watcher started", logger.FieldSymbol, sym.AM)
	}
	return nil
}

// Start starts the background services and serves HTTP until Stop.
// It returns nil after a clean Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.port)
	}
	return s.Serve(listener)
}

// Serve is Start on an existing listener
func (s *Server) Serve(listener net.Listener) error {
	if !s.state.CompareAndSwap(int32(ServerStateCreated), int32(ServerStateRunning)) {
		listener.Close()
		return errors.Newf("server cannot start from state %s", s.State())
	}
	if err := s.startBackgroundServices(); err != nil {
		listener.Close()
		s.Stop()
		return err
	}

	s.logger.Infow("Server ready",
		logger.FieldAddress, listener.Addr().String(),
		logger.FieldPort, s.port)

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains HTTP, disconnects websocket clients, stops background
// services (cancelling in-flight jobs) and closes owned connections.
// Safe to call more than once.
func (s *Server) Stop() error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.setState(ServerStateDraining)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP shutdown incomplete", logger.FieldError, err)
		}
		cancel()
		s.hub.Stop()

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Debugw("Config watcher stop", logger.FieldError, err)
			}
		}
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		if s.janitor != nil {
			s.janitor.Stop()
		}
		s.scheduler.Stop()

		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil && stopErr == nil {
				stopErr = errors.Wrap(err, "failed to close server resources")
			}
		}
		s.setState(ServerStateStopped)
	})
	return stopErr
}
