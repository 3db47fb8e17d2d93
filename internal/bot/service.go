// Package bot implements the bot instance lifecycle, the orchestrator that
// runs the configured instances as one unit, and the service that ties the
// orchestrator to the maintenance scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/assistbots/internal/config"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
)

// errFleetStopped ends the service when the orchestrator returns before
// shutdown was requested.
var errFleetStopped = errors.New("bot fleet stopped")

// Service runs the orchestrator and the scheduler until shutdown.
type Service struct {
	logger       *slog.Logger
	pairs        []config.InstancePair
	orchestrator *Orchestrator
	scheduler    *Scheduler
}

// NewService creates a service launching pairs on orchestrator. scheduler
// may be nil.
func NewService(log *slog.Logger, pairs []config.InstancePair, orchestrator *Orchestrator, scheduler *Scheduler) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		logger:       log.With("component", "service"),
		pairs:        pairs,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}
}

// Run blocks until ctx is cancelled or every instance has stopped. Empty or
// invalid instance configuration is logged and is not an error; failing to
// launch the instances is.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting service...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.orchestrator.Launch(gCtx, s.pairs)
		switch {
		case errs.IsConfig(err):
			s.logger.Warn("Nothing to run", "error", err)
			return errFleetStopped
		case err != nil:
			return fmt.Errorf("failed to launch bot instances: %w", err)
		case gCtx.Err() == nil:
			return errFleetStopped
		}
		return nil
	})

	if s.scheduler != nil {
		g.Go(func() error {
			if err := s.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			s.logger.Info("Stopping scheduler...")
			if err := s.scheduler.Stop(); err != nil {
				s.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, errFleetStopped) && !errors.Is(err, context.Canceled) {
		s.logger.Error("Service stopped due to error", "error", err)
		return err
	}

	s.logger.Info("Service stopped gracefully")
	return nil
}
