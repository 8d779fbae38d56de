package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

// StartKafka consumes trip payloads, one JSON trip per message. Messages that
// fail to decode are logged and skipped.
func StartKafka(ctx context.Context, cfg *config.Manager, cat *catalog.Catalog, out chan<- model.Submission, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			trip, err := DecodeTrip(m.Value, cat)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka decode error", "partition", m.Partition, "offset", m.Offset, "err", err)
				}
				continue
			}
			if trip.VehicleID == "" && len(m.Key) > 0 {
				trip.VehicleID = string(m.Key)
			}
			SendNonBlocking(ctx, out, submission(trip, "kafka"), logger)
		}
	}()
}
