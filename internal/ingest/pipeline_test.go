package ingest

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/observability"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

func TestSubmit_AcceptsUntilQueueFull(t *testing.T) {
	thresholds := config.Defaults().Thresholds
	st := store.New(thresholds, time.Now)
	metrics := observability.NewMetrics()
	log := zap.NewNop()

	p := New(st, metrics, log, 2, 1)
	ctx := context.Background()
	r := reading.Reading{Timestamp: time.Now(), V1: 230, V2: 230, V3: 230}

	if !p.Submit(ctx, r) {
		t.Fatal("first submit should succeed")
	}
	if !p.Submit(ctx, r) {
		t.Fatal("second submit should succeed (queue cap 2)")
	}
	if p.Submit(ctx, r) {
		t.Fatal("third submit should fail, queue is full")
	}
}

func TestRun_DrainsQueueIntoStore(t *testing.T) {
	thresholds := config.Defaults().Thresholds
	st := store.New(thresholds, time.Now)
	metrics := observability.NewMetrics()
	log := zap.NewNop()

	p := New(st, metrics, log, 16, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		p.Submit(ctx, reading.Reading{Timestamp: time.Now().Add(time.Duration(i) * time.Second), V1: 230, V2: 230, V3: 230})
	}

	deadline := time.After(2 * time.Second)
	for {
		if st.Stats().TotalReadings == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for workers to drain queue")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
