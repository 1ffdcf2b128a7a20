package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cardjoy/giftbox-service/pkg/events"
	"github.com/cardjoy/giftbox-service/pkg/logger"
)

// WebhookWorker drains the queued gateway events and settles them against the
// ledger. Events that keep failing land in the DLQ for manual inspection.
type WebhookWorker struct {
	Service     *Service
	RedisClient *events.RedisClient
}

func NewWebhookWorker(service *Service, redisClient *events.RedisClient) *WebhookWorker {
	return &WebhookWorker{Service: service, RedisClient: redisClient}
}

func (w *WebhookWorker) Start() {
	logger.Info("Starting webhook worker...")
	go w.processEvents()
}

func (w *WebhookWorker) processEvents() {
	for {
		result, err := w.RedisClient.Client.BLPop(context.Background(), 5*time.Second, events.WebhookQueue).Result()
		if err != nil {
			continue
		}

		eventData := []byte(result[1])
		var event events.GatewayEvent
		if err := json.Unmarshal(eventData, &event); err != nil {
			logger.Error("WebhookWorker: Failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(eventData)})
			w.moveToDLQ(eventData)
			continue
		}

		w.handleEvent(event, eventData)
	}
}

func (w *WebhookWorker) handleEvent(event events.GatewayEvent, rawData []byte) {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.Service.ProcessGatewayEvent(context.Background(), event)
		if err == nil {
			logger.Info("WebhookWorker: Successfully processed event", logger.Fields{"event": event.Event, "reference": event.Reference})
			return
		}

		logger.Warn("WebhookWorker: Failed to process event, retrying", logger.Fields{
			"event":     event.Event,
			"reference": event.Reference,
			"attempt":   i + 1,
			"error":     err.Error(),
		})
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	logger.Error("WebhookWorker: Max retries exhausted, moving to DLQ", logger.Fields{"reference": event.Reference})
	w.moveToDLQ(rawData)
}

func (w *WebhookWorker) moveToDLQ(data []byte) {
	if err := w.RedisClient.PushToDLQ(context.Background(), data); err != nil {
		logger.Error("WebhookWorker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}

// SweepWorker periodically reconciles funding transactions stuck in PENDING,
// so a missed webhook or an abandoned checkout cannot leave the ledger
// unresolved forever.
type SweepWorker struct {
	Service  *Service
	Interval time.Duration
}

func NewSweepWorker(service *Service, interval time.Duration) *SweepWorker {
	return &SweepWorker{Service: service, Interval: interval}
}

func (w *SweepWorker) Start() {
	logger.Info("Starting pending sweep worker...", logger.Fields{"interval": w.Interval.String()})
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for range ticker.C {
			w.Service.ReconcilePending(context.Background())
		}
	}()
}
