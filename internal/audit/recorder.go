package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/client"
	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// Recorder publishes security events to the analytics plane. All sinks
// are best-effort: a broker outage must never fail a login.
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

type MultiRecorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	topic      string
	index      string
}

func NewMultiRecorder(cfg *config.Config, producer *client.KafkaProducer, ch *client.ClickHouseClient, es *client.ESClient) *MultiRecorder {
	return &MultiRecorder{
		producer:   producer,
		clickhouse: ch,
		es:         es,
		topic:      cfg.Kafka.SecurityTopic,
		index:      cfg.Elasticsearch.AuditIndex,
	}
}

func (r *MultiRecorder) Record(ctx context.Context, event *Event) {
	// Detach from the request context so a canceled request does not
	// cut the publish short.
	go r.record(event)
}

func (r *MultiRecorder) record(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("failed to encode audit event", zap.Error(err))
		return
	}

	if r.producer != nil {
		if err := r.producer.ProduceMessage(ctx, r.topic, []byte(event.EventType), payload, map[string]string{
			"event_id": event.EventID,
		}); err != nil {
			util.Warn("audit event not published to kafka",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.clickhouse != nil {
		rows := [][]interface{}{{
			event.EventID, event.EventType, event.Email, event.UserID,
			event.DeviceID, event.SourceIP, event.Detail,
			uint8(event.Bucket), event.DateBucket, event.OccurredAt,
		}}
		if err := r.clickhouse.BatchInsert(ctx, `
            INSERT INTO auth_events (
                event_id, event_type, email, user_id, device_id,
                source_ip, detail, bucket, date_bucket, occurred_at
            )`, rows); err != nil {
			util.Warn("audit event not written to clickhouse",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.es != nil {
		res, err := r.es.IndexDocument(r.index, event.EventID, event)
		if err != nil {
			util.Warn("audit event not indexed",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		} else {
			res.Body.Close()
		}
	}
}

// NopRecorder discards events. Used in tests and when the analytics
// plane is not configured.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, event *Event) {}
