// Package ingest — pipeline.go
//
// Bounded ingest pipeline for the voltage analytics agent.
//
// Architecture:
//
//	[HTTP ingest handler / reading generator]
//	      ↓  (bounded channel, cap=QueueSize)
//	[Worker goroutines (Workers)]
//	      ↓
//	[store.Store.Push → C2–C5 → ring buffers]
//
// Backpressure:
//   - Submit performs a non-blocking send. If the channel is full, the
//     reading is dropped and metrics.ReadingsDroppedTotal{reason="queue_full"}
//     is incremented — this is the bounded-memory backpressure behavior;
//     the store itself holds no queue of its own, every Push call runs
//     to completion synchronously.
//
// Shutdown:
//   - ctx cancellation stops every worker goroutine; Run returns once
//     all workers have exited.
package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/observability"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

// Pipeline is the bounded channel and worker pool between the ingest
// edge (HTTP handler, reading generator) and the state store.
type Pipeline struct {
	store   *store.Store
	metrics *observability.Metrics
	log     *zap.Logger
	queue   chan reading.Reading
	workers int
}

// New creates a Pipeline with the given queue capacity and worker count.
// queueCap and workers must both be > 0 — enforced by config.Validate
// before this is constructed.
func New(st *store.Store, metrics *observability.Metrics, log *zap.Logger, queueCap, workers int) *Pipeline {
	return &Pipeline{
		store:   st,
		metrics: metrics,
		log:     log,
		queue:   make(chan reading.Reading, queueCap),
		workers: workers,
	}
}

// Submit performs a non-blocking send of r onto the ingest queue.
// Returns false if the queue is full; Submit itself records the drop in
// ReadingsDroppedTotal, and the caller (HTTP handler) is responsible for
// surfacing it, e.g. as a 429.
func (p *Pipeline) Submit(ctx context.Context, r reading.Reading) bool {
	select {
	case p.queue <- r:
		p.metrics.ReadingsIngestedTotal.Inc()
		p.metrics.IngestQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		p.metrics.ReadingsDroppedTotal.WithLabelValues("queue_full").Inc()
		p.log.Warn("ingest queue full, dropping reading", zap.Time("timestamp", r.Timestamp))
		return false
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has exited. Readings still queued when ctx is cancelled may be
// left unprocessed.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-p.queue:
			if !ok {
				return
			}
			result := p.store.Push(r)
			p.metrics.IngestQueueDepth.Set(float64(len(p.queue)))

			for _, a := range result.Anomalies {
				p.metrics.AnomaliesTotal.WithLabelValues(a.Phase.String(), string(a.Kind), string(a.Severity)).Inc()
			}
			p.metrics.AnomaliesActive.Set(float64(len(p.store.ActiveAnomalies())))

			if result.CompletedWindow != nil {
				p.metrics.WindowsCompletedTotal.Inc()
				w := result.CompletedWindow
				p.metrics.WindowComplianceRatio.WithLabelValues("L1").Set(boolToFloat(w.CompliantL1))
				p.metrics.WindowComplianceRatio.WithLabelValues("L2").Set(boolToFloat(w.CompliantL2))
				p.metrics.WindowComplianceRatio.WithLabelValues("L3").Set(boolToFloat(w.CompliantL3))
			}
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
