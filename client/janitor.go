package client

import (
	"context"
	"log"
	"time"
)

// Janitor deletes old read notifications on a slow recurring schedule.
// Stop must be called on teardown so login/logout and reconnect cycles do
// not leak tickers.
type Janitor struct {
	api      API
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewJanitor(api API, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{api: api, interval: interval}
}

// Start launches the cleanup loop. The first sweep happens after one full
// interval, not immediately.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := j.api.DeleteRead(ctx); err != nil && ctx.Err() == nil {
					log.Printf("cleanup of read notifications: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
}
