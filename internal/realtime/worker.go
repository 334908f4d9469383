package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"textile-sync/internal/models"
	"textile-sync/internal/store"
	"textile-sync/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Applier splices remote change notifications into the entity cache so a
// concurrent mutation from another session shows up without a manual
// refetch. Rows are normalized before entering the cache, like any fetch.
type Applier struct {
	cache  *store.Store
	logger *zap.Logger
}

func NewApplier(cache *store.Store) *Applier {
	return &Applier{cache: cache, logger: util.GetLogger()}
}

// HandleMessage applies one change event.
func (a *Applier) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	return a.Apply(event)
}

// Apply splices a single change into the cache.
func (a *Applier) Apply(event ChangeEvent) error {
	switch event.Op {
	case OpInsert, OpUpdate:
		rec, ok := models.Normalize(event.Kind, event.Row)
		if !ok {
			return fmt.Errorf("unknown entity kind %q", event.Kind)
		}
		a.cache.Upsert(event.Kind, rec)
	case OpDelete:
		a.cache.Remove(event.Kind, event.RecordID)
	default:
		return fmt.Errorf("unknown change op %q", event.Op)
	}

	util.RealtimeEventsTotal.WithLabelValues(event.Kind, event.Op).Inc()
	a.logger.Debug("Applied remote change",
		zap.String("kind", event.Kind),
		zap.String("op", event.Op),
		zap.String("record_id", event.RecordID))
	return nil
}

// Worker runs the change-feed consumer against the applier.
type Worker struct {
	consumer *Consumer
	applier  *Applier
}

func NewWorker(consumer *Consumer, applier *Applier) *Worker {
	return &Worker{consumer: consumer, applier: applier}
}

// Start consumes until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.applier.HandleMessage)
}

// Stop closes the underlying consumer.
func (w *Worker) Stop() error {
	return w.consumer.Close()
}
