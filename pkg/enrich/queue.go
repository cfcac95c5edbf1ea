package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/metrics"
	"github.com/majoor/assetindex/pkg/store"
)

// InteractionPause is the subset of pkg/search.PauseToken the queue
// depends on; kept as an interface so this package never imports
// pkg/search.
type InteractionPause interface {
	Active() bool
	Remaining() time.Duration
}

// Queue is the bounded background enrichment queue the indexer hands
// filepaths to when a scan runs in background-metadata mode. It
// satisfies pkg/indexer's EnrichmentQueue interface structurally.
type Queue struct {
	service *Service
	store   *store.Store
	jobs    chan string
	pause   InteractionPause

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue builds a Queue with the given channel capacity. It does not
// start processing until Start is called. pause may be nil, in which
// case workers never yield to interactive traffic.
func NewQueue(service *Service, s *store.Store, capacity int, pause InteractionPause) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{service: service, store: s, jobs: make(chan string, capacity), pause: pause}
}

// Enqueue submits filepath for background extraction. It returns false
// without blocking if the queue is full; the caller is responsible for
// logging the drop.
func (q *Queue) Enqueue(filepath string) bool {
	select {
	case q.jobs <- filepath:
		metrics.SetEnrichmentQueueLength(len(q.jobs))
		return true
	default:
		return false
	}
}

// Start launches workerCount goroutines draining the queue.
func (q *Queue) Start(ctx context.Context, workerCount int) {
	if workerCount <= 0 {
		workerCount = 1
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go q.worker()
	}
}

// Stop cancels the workers and blocks until every worker has exited.
// Filepaths still buffered are not processed; they stay in the queue
// for the next Start.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// QueueLength reports the number of filepaths currently buffered,
// surfaced by the maintenance health/counters endpoint.
func (q *Queue) QueueLength() int {
	return len(q.jobs)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case path, ok := <-q.jobs:
			if !ok {
				return
			}
			q.yieldToInteraction()
			q.process(path)
			metrics.SetEnrichmentQueueLength(len(q.jobs))
		}
	}
}

// yieldToInteraction sleeps out any active interaction pause before
// picking up the next job, so a burst of listing/search requests stays
// ahead of background extraction.
func (q *Queue) yieldToInteraction() {
	if q.pause == nil {
		return
	}
	for q.pause.Active() {
		wait := q.pause.Remaining()
		if wait <= 0 {
			return
		}
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (q *Queue) process(path string) {
	asset, aerr := assetdb.GetByFilepath(q.ctx, q.store, assetdb.CanonicalFilepathKey(path))
	if aerr != nil {
		logger.WarnCtx(q.ctx, "enrichment queue: asset no longer indexed", "filepath", path)
		return
	}
	result, err := q.service.Extract(q.ctx, path, asset.Kind)
	if err != nil {
		logger.WarnCtx(q.ctx, "background enrichment failed", "filepath", path, "error", err)
		return
	}
	if aerr := assetdb.ApplyEnrichment(q.ctx, q.store, asset.ID, result); aerr != nil {
		logger.WarnCtx(q.ctx, "failed to persist background enrichment", "filepath", path, "error", aerr)
	}
}
