package authz

import (
	"context"
	"time"

	"github.com/energyos/espi-authz/internal/storage"
	"go.uber.org/zap"
)

// Sweeper periodically expires Authorization records that have rested in a
// pending status longer than the configured TTL: Created records whose
// callback never arrived, and CodeReceived records whose exchange goroutine
// died with the process. The callback path applies the Created check lazily,
// so correctness does not depend on sweep timing; the sweep keeps the table
// from accumulating abandoned redirects and guarantees CodeReceived is never
// a resting state across restarts.
type Sweeper struct {
	store    storage.Store
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(logger *zap.Logger, store storage.Store, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger.Named("authz.sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// SweepOnce expires all currently stale pending records. The token exchange
// is bounded in seconds, so a CodeReceived record still resting after the
// TTL belongs to a process that died mid-exchange.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	s.expire(ctx, storage.StatusCreated, cutoff,
		"authorization request expired without a callback")
	s.expire(ctx, storage.StatusCodeReceived, cutoff,
		"token exchange never completed")
}

func (s *Sweeper) expire(ctx context.Context, from storage.AuthorizationStatus, cutoff time.Time, description string) {
	stale, err := s.store.ListStale(ctx, from, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep failed",
			zap.String("status", string(from)), zap.Error(err))
		return
	}

	for _, authz := range stale {
		authz.State = ""
		authz.Status = storage.StatusErrored
		authz.ErrorCode = "authorization_expired"
		authz.ErrorDescription = description
		// Guarded write: a record consumed or completed between the list and
		// this point keeps its newer status.
		if err := s.store.UpdateIfStatus(ctx, authz, from); err != nil {
			s.logger.Debug("skipping expiry, authorization moved on",
				zap.String("authorization_id", authz.ID), zap.Error(err))
			continue
		}
		s.logger.Info("expired stale authorization",
			zap.String("authorization_id", authz.ID),
			zap.String("from", string(from)))
	}
}
