package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/assistbots/internal/config"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
)

// ErrAlreadyLaunched is returned by a second call to Launch.
var ErrAlreadyLaunched = errors.New("orchestrator already launched")

// Orchestrator runs a fixed set of instances as one unit: all of them
// start, or none of them poll.
type Orchestrator struct {
	deps          InstanceDeps
	log           *slog.Logger
	shutdownGrace time.Duration

	mu           sync.Mutex
	launched     bool
	shuttingDown bool
	instances    []*Instance
}

// NewOrchestrator creates an orchestrator. shutdownGrace bounds how long
// Launch waits for instances after its context is cancelled.
func NewOrchestrator(deps InstanceDeps, shutdownGrace time.Duration, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	if deps.Logger == nil {
		deps.Logger = log
	}
	if shutdownGrace <= 0 {
		shutdownGrace = config.DefaultTelegramShutdownGrace
	}
	return &Orchestrator{
		deps:          deps,
		log:           log.With("component", "orchestrator"),
		shutdownGrace: shutdownGrace,
	}
}

// Launch creates one instance per pair, initializes them in order and, if
// every one succeeded, polls them concurrently until ctx is cancelled or
// all of them stop on their own. Initialization failures are joined and
// returned after the instances that did initialize are released. A
// ShutdownAll during initialization aborts the launch like a cancelled ctx.
func (o *Orchestrator) Launch(ctx context.Context, pairs []config.InstancePair) error {
	o.mu.Lock()
	if o.launched {
		o.mu.Unlock()
		return ErrAlreadyLaunched
	}
	o.launched = true

	if len(pairs) == 0 {
		o.mu.Unlock()
		o.log.ErrorContext(ctx, "No bot instances configured, nothing to launch")
		return errs.ErrNoInstances
	}

	instances := make([]*Instance, 0, len(pairs))
	for idx, pair := range pairs {
		instances = append(instances, NewInstance(idx, pair, o.deps))
	}
	o.instances = instances
	o.mu.Unlock()

	o.log.InfoContext(ctx, "Initializing bot instances", "count", len(instances))

	var initErrs []error
	for _, inst := range instances {
		if o.aborted(ctx) {
			break
		}
		if err := inst.Initialize(ctx); err != nil {
			initErrs = append(initErrs, err)
		}
	}

	if o.aborted(ctx) {
		o.log.InfoContext(ctx, "Launch aborted, releasing instances", "init_failures", len(initErrs))
		o.releaseAll()
		return nil
	}
	if len(initErrs) > 0 {
		o.log.ErrorContext(ctx, "Bot instances failed to initialize, releasing the rest",
			"failed", len(initErrs), "total", len(instances))
		o.releaseAll()
		return errors.Join(initErrs...)
	}

	var g errgroup.Group
	for _, inst := range instances {
		g.Go(func() error {
			if err := inst.BeginPolling(ctx); err != nil {
				o.log.Error("Instance stopped with error", "instance", inst.Index(), "assistant_id", inst.AssistantID(), "error", err)
			}
			return nil
		})
	}

	allStopped := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(allStopped)
	}()

	o.log.InfoContext(ctx, "All bot instances polling", "count", len(instances))

	select {
	case <-allStopped:
		o.log.WarnContext(ctx, "All bot instances stopped on their own")
		return nil
	case <-ctx.Done():
	}

	o.log.Info("Shutdown requested, stopping bot instances", "grace", o.shutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.shutdownGrace)
	defer cancel()

	if err := o.ShutdownAll(shutdownCtx); err != nil {
		o.log.Warn("Bot instances did not stop within the grace period", "error", err)
		return nil
	}
	<-allStopped

	o.log.Info("All bot instances stopped")
	return nil
}

// ShutdownAll requests every instance to stop and waits until all of them
// have. It is safe to call concurrently and more than once. If ctx ends
// first, ctx.Err() is returned.
func (o *Orchestrator) ShutdownAll(ctx context.Context) error {
	o.mu.Lock()
	o.shuttingDown = true
	instances := append([]*Instance(nil), o.instances...)
	o.mu.Unlock()

	for _, inst := range instances {
		inst.RequestStop()
	}

	for _, inst := range instances {
		select {
		case <-inst.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Instances returns the launched instances in configuration order.
func (o *Orchestrator) Instances() []*Instance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Instance(nil), o.instances...)
}

// aborted reports whether launch should stop initializing.
func (o *Orchestrator) aborted(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shuttingDown || ctx.Err() != nil
}

// releaseAll stops instances that never reached polling.
func (o *Orchestrator) releaseAll() {
	for _, inst := range o.Instances() {
		inst.RequestStop()
	}
}
