// Package poller implements InstancePoller: a background
// worker pool that detects completed module instances, resolves their
// dependents, and marks the poll cycle idempotent.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/resolver"
	"github.com/agentctx/platform/internal/store"
)

// Config controls the poller's cadence and concurrency.
type Config struct {
	PollInterval time.Duration
	MaxWorkers   int
}

// Metrics receives the poller's gauges; observability.Provider satisfies
// this structurally so poller never imports that package.
type Metrics interface {
	SetPollerQueueDepth(n int)
	IncPollerCycle()
}

// Poller owns the enqueue loop and its worker pool.
type Poller struct {
	cfg       Config
	db        store.Store
	instances *entity.InstanceRepo
	links     *entity.LinkRepo
	resolver  *resolver.Resolver
	log       *slog.Logger
	metrics   Metrics

	queue    chan string
	inFlight sync.Map // instance_id -> struct{}
	wg       sync.WaitGroup
}

// WithMetrics attaches an optional Metrics sink. Additive: existing
// callers of New are unaffected.
func (p *Poller) WithMetrics(m Metrics) *Poller {
	p.metrics = m
	return p
}

func (p *Poller) reportQueueDepth() {
	if p.metrics == nil {
		return
	}
	n := 0
	p.inFlight.Range(func(_, _ any) bool { n++; return true })
	p.metrics.SetPollerQueueDepth(n)
}

func New(cfg Config, db store.Store, instances *entity.InstanceRepo, links *entity.LinkRepo, res *resolver.Resolver, log *slog.Logger) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	return &Poller{
		cfg:       cfg,
		db:        db,
		instances: instances,
		links:     links,
		resolver:  res,
		log:       log,
		queue:     make(chan string, 256),
	}
}

// Run blocks, driving the enqueue loop and worker pool until ctx is
// cancelled. Workers drain the queue before returning.
func (p *Poller) Run(ctx context.Context) {
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(p.queue)
			p.wg.Wait()
			return
		case <-ticker.C:
			p.enqueueDue(ctx)
			if p.metrics != nil {
				p.metrics.IncPollerCycle()
			}
		}
	}
}

func (p *Poller) enqueueDue(ctx context.Context) {
	due, err := p.instances.PendingPollWork(ctx)
	if err != nil {
		p.log.Error("poller: scan failed", "error", err)
		return
	}
	for _, inst := range due {
		if _, loaded := p.inFlight.LoadOrStore(inst.InstanceID, struct{}{}); loaded {
			continue
		}
		select {
		case p.queue <- inst.InstanceID:
		case <-ctx.Done():
			return
		}
	}
	p.reportQueueDepth()
}

func (p *Poller) worker(ctx context.Context) {
	defer p.wg.Done()
	for instanceID := range p.queue {
		p.process(ctx, instanceID)
		p.inFlight.Delete(instanceID)
		p.reportQueueDepth()
	}
}

func (p *Poller) process(ctx context.Context, instanceID string) {
	inst, err := p.instances.Get(ctx, instanceID)
	if err != nil {
		p.log.Error("poller: re-read instance failed", "instance_id", instanceID, "error", err)
		return
	}
	narrativeID, err := p.narrativeOf(ctx, instanceID)
	if err != nil {
		p.log.Error("poller: narrative lookup failed", "instance_id", instanceID, "error", err)
		return
	}
	if narrativeID == "" {
		// Agent-level public instances have no narrative link and never
		// block anything; nothing to resolve.
		_ = p.instances.MarkPolled(ctx, instanceID, inst.Status)
		return
	}
	if _, err := p.resolver.HandleCompletion(ctx, narrativeID, instanceID, inst.Status); err != nil {
		p.log.Error("poller: resolve dependents failed", "instance_id", instanceID, "error", err)
		return
	}
	if err := p.instances.MarkPolled(ctx, instanceID, inst.Status); err != nil {
		p.log.Error("poller: mark polled failed", "instance_id", instanceID, "error", err)
	}
}

func (p *Poller) narrativeOf(ctx context.Context, instanceID string) (string, error) {
	links, err := p.links.ForInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	for _, l := range links {
		if l.LinkType == entity.LinkActive {
			return l.NarrativeID, nil
		}
	}
	if len(links) > 0 {
		return links[0].NarrativeID, nil
	}
	return "", nil
}
