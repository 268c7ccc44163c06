package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockAlertJob reports products that dropped to their reorder threshold.
type LowStockAlertJob struct {
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockAlertJob wires dependencies for the alert handler.
func NewLowStockAlertJob(audit AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes low-stock alert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("low stock alert: handler not configured")
	}
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ProductID <= 0 {
		return asynq.SkipRetry
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskLowStockAlert)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskLowStockAlert).With(slog.Int64("product_id", payload.ProductID))
	logger.Warn("product at or below minimum stock",
		slog.String("sku", payload.SKU),
		slog.String("name", payload.Name),
		slog.Int("quantity", payload.Quantity),
		slog.Int("min_stock_level", payload.MinStockLevel))

	if j.Audit != nil {
		err := j.Audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:low_stock",
			Entity:   "product",
			EntityID: strconv.FormatInt(payload.ProductID, 10),
			Meta: map[string]any{
				"sku":             payload.SKU,
				"quantity":        payload.Quantity,
				"min_stock_level": payload.MinStockLevel,
			},
			At: j.now(),
		})
		if err != nil {
			logger.Error("record low stock audit", slog.Any("error", err))
			return err
		}
	}
	metrics.AddLowStockAlert()
	return nil
}

func (j *LowStockAlertJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func jobLogger(logger *slog.Logger, task string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
