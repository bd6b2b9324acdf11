// Package importer decouples notification acknowledgment from resource
// import: the HTTP handler enqueues resource URLs and returns immediately,
// a fixed worker pool drains the bounded queue and fetches each resource
// with the owning authorization's access token.
package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/energyos/espi-authz/internal/espi/ident"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/energyos/espi-authz/pkg/metrics"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the bounded queue cannot accept another
// task; the notification endpoint translates it to a 503.
var ErrQueueFull = errors.New("import queue full")

// ErrStopped is returned when the importer is no longer accepting tasks.
var ErrStopped = errors.New("importer stopped")

// ResourceFetcher retrieves a resource on behalf of an authorization.
// Implemented by the surrounding application against the data custodian's
// resource API.
type ResourceFetcher interface {
	Fetch(ctx context.Context, resourceURL, accessToken string) error
}

// Task is one resource URL to import for an authorization.
type Task struct {
	AuthorizationID string
	ResourceURL     string
}

// Importer is the bounded queue plus worker pool.
type Importer struct {
	queue   chan Task
	store   storage.Store
	fetcher ResourceFetcher
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates an importer with the given queue capacity and worker count.
// Start must be called before tasks are processed.
func New(logger *zap.Logger, store storage.Store, fetcher ResourceFetcher, m *metrics.Metrics, queueSize, workers int) *Importer {
	imp := &Importer{
		queue:   make(chan Task, queueSize),
		store:   store,
		fetcher: fetcher,
		metrics: m,
		logger:  logger.Named("importer"),
	}
	imp.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go imp.worker()
	}
	return imp
}

// Enqueue adds a task without blocking. A full queue is reported to the
// caller instead of stalling the notification handler.
func (imp *Importer) Enqueue(task Task) error {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.stopped {
		return ErrStopped
	}
	select {
	case imp.queue <- task:
		if imp.metrics != nil {
			imp.metrics.ImportQueued(len(imp.queue))
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new tasks, drains the queue and waits for the workers.
func (imp *Importer) Stop() {
	imp.mu.Lock()
	if imp.stopped {
		imp.mu.Unlock()
		return
	}
	imp.stopped = true
	close(imp.queue)
	imp.mu.Unlock()
	imp.wg.Wait()
}

func (imp *Importer) worker() {
	defer imp.wg.Done()
	for task := range imp.queue {
		imp.process(task)
	}
}

func (imp *Importer) process(task Task) {
	start := time.Now()
	outcome := "ok"
	if err := imp.importResource(context.Background(), task); err != nil {
		outcome = "failed"
		imp.logger.Warn("resource import failed",
			zap.String("authorization_id", task.AuthorizationID),
			zap.String("resource_url", task.ResourceURL),
			zap.Error(err))
	}
	if imp.metrics != nil {
		imp.metrics.ImportDone(outcome, start)
		imp.metrics.ImportQueued(len(imp.queue))
	}
}

func (imp *Importer) importResource(ctx context.Context, task Task) error {
	// The href must be absolute; this also yields the deterministic resource
	// id shared with the data custodian.
	resourceID, err := ident.GenerateID(task.ResourceURL)
	if err != nil {
		return err
	}

	authz, found, err := imp.store.Get(ctx, task.AuthorizationID)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("authorization not found")
	}
	if authz.Status != storage.StatusActive {
		return errors.New("authorization not active")
	}

	imp.logger.Debug("importing resource",
		zap.String("resource_id", resourceID.String()),
		zap.String("resource_url", task.ResourceURL))
	return imp.fetcher.Fetch(ctx, task.ResourceURL, authz.AccessToken)
}
