package liveness

import (
	"context"
	"time"
)

// Reaper drives the expiry sweep on a fixed interval. An abandoned session
// must not outlive its TTL no matter what the client does, so the sweep runs
// independently of any request.
type Reaper struct {
	service  *Service
	interval time.Duration
}

func NewReaper(service *Service, interval time.Duration) *Reaper {
	return &Reaper{service: service, interval: interval}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.service.ExpireDue(ctx)
		}
	}
}
