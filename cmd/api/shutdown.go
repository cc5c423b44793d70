package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type stopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown tears the process down in dependency order: the HTTP server first,
// then background workers, then the resources both of them publish through.
// Resources are released only once nothing can still be using them.
type shutdown struct {
	server      stopper
	stopWorkers context.CancelFunc
	workers     *sync.WaitGroup
	release     []func()
	logger      *slog.Logger
}

func (s shutdown) run(ctx context.Context) error {
	serverErr := s.server.Shutdown(ctx)

	s.stopWorkers()
	s.workers.Wait()

	if serverErr != nil {
		s.logger.Error("requests still in flight, leaving producers and pools open", "error", serverErr)
		return fmt.Errorf("shutdown http server: %w", serverErr)
	}
	for i := len(s.release) - 1; i >= 0; i-- {
		s.release[i]()
	}
	return nil
}
