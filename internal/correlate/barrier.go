package correlate

import (
	"context"
	"sync"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// Evaluation is one evaluated service: its snapshot and the findings the
// ruleset produced for it.
type Evaluation struct {
	Snapshot *snapshot.Snapshot
	Findings []models.Finding
}

// Barrier lets correlation rules wait for the services they depend on.
// Every expected service is resolved exactly once, either with Done when
// its evaluation is complete or with Fail when it could not be analyzed.
type Barrier struct {
	slots map[snapshot.Service]*slot
}

type slot struct {
	ready chan struct{}
	eval  *Evaluation
	once  sync.Once
}

// NewBarrier returns a barrier expecting services.
func NewBarrier(services []snapshot.Service) *Barrier {
	b := &Barrier{slots: make(map[snapshot.Service]*slot, len(services))}
	for _, s := range services {
		b.slots[s] = &slot{ready: make(chan struct{})}
	}
	return b
}

// Done publishes the evaluation of svc and releases its waiters.
func (b *Barrier) Done(svc snapshot.Service, eval *Evaluation) {
	b.resolve(svc, eval)
}

// Fail marks svc as not analyzed and releases its waiters.
func (b *Barrier) Fail(svc snapshot.Service) {
	b.resolve(svc, nil)
}

func (b *Barrier) resolve(svc snapshot.Service, eval *Evaluation) {
	s, ok := b.slots[svc]
	if !ok {
		return
	}
	s.once.Do(func() {
		s.eval = eval
		close(s.ready)
	})
}

// Wait blocks until every service in deps is resolved. It returns the
// evaluations that completed and the dependencies that were not analyzed.
// Services the barrier does not expect count as not analyzed.
func (b *Barrier) Wait(ctx context.Context, deps []snapshot.Service) (map[snapshot.Service]*Evaluation, []snapshot.Service, error) {
	evals := make(map[snapshot.Service]*Evaluation, len(deps))
	var missing []snapshot.Service
	for _, d := range deps {
		s, ok := b.slots[d]
		if !ok {
			missing = append(missing, d)
			continue
		}
		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if s.eval == nil {
			missing = append(missing, d)
			continue
		}
		evals[d] = s.eval
	}
	return evals, missing, nil
}
