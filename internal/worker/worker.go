// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/analyzer"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
)

// Worker processes analysis batches asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	analyzer *analyzer.Analyzer

	ringAlertThreshold float64

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process. When empty the worker
	// subscribes under the "_global" tenant instead; because the bus keys
	// subscriptions by tenant, that subscription only receives batches
	// published under "_global", not tenant-scoped API publishes. Production
	// deployments must list their tenants.
	TenantIDs []string

	// RingAlertThreshold is the minimum ring risk score that triggers a
	// ring.detected event.
	RingAlertThreshold float64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, a *analyzer.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:                bus,
		repo:               repo,
		cache:              cache,
		analyzer:           a,
		ringAlertThreshold: 60,
		ctx:                ctx,
		cancel:             cancel,
	}
}

// Start begins processing batches for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.RingAlertThreshold > 0 {
		w.ringAlertThreshold = cfg.RingAlertThreshold
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes under the reserved "_global" tenant. This is
// a dev/test harness path: it sees only batches published to that tenant,
// since bus subscriptions are tenant-keyed. The batch payload's own tenantId
// still routes the results.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// BatchMessage is the message payload for an async analysis request.
type BatchMessage struct {
	TenantID     string                     `json:"tenantId"`
	TraceID      string                     `json:"traceId"`
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// RingAlert is the payload published for each high-risk ring.
type RingAlert struct {
	AnalysisID string           `json:"analysisId"`
	TenantID   string           `json:"tenantId"`
	Ring       domain.FraudRing `json:"ring"`
}

// processBatch runs a full analysis for one batch message.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if batch.TenantID != "" {
		tenantID = batch.TenantID
	}

	traceID := batch.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	transactions, rowErrs := ingest.ParseRecords(batch.Transactions, tenantID)
	if len(rowErrs) > 0 {
		slog.Warn("batch contains invalid records",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"invalid", len(rowErrs),
		)
	}

	result, err := w.analyzer.Run(ctx, tenantID, transactions)
	if err != nil {
		slog.Error("analysis run failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	// Persist and cache the result
	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}
	if w.cache != nil {
		if err := w.cache.SetAnalysis(ctx, tenantID, result, 10*time.Minute); err != nil {
			slog.Warn("failed to cache analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	// Publish completion
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish completion",
			"analysis_id", result.ID,
			"error", err,
		)
	}

	// Publish an alert for each high-risk ring
	for _, ring := range result.Rings {
		if ring.RiskScore < w.ringAlertThreshold {
			continue
		}
		alertPayload, _ := json.Marshal(RingAlert{
			AnalysisID: result.ID,
			TenantID:   tenantID,
			Ring:       ring,
		})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicRingDetected, alertPayload); err != nil {
			slog.Error("failed to publish ring alert",
				"analysis_id", result.ID,
				"ring_id", ring.ID,
				"error", err,
			)
		}
	}

	slog.Info("batch processed",
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"transactions", len(transactions),
		"flagged", result.Summary.FlaggedAccounts,
		"rings", result.Summary.RingCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
