package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert reports a product left at or below its minimum stock level.
	TaskLowStockAlert = "inventory:low_stock_alert"
	// TaskStatsWarmup precomputes the stats dashboard.
	TaskStatsWarmup = "stats:warmup"
	// TaskIdempotencyCleanup deletes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockAlertPayload carries the stock reading taken right after a sale.
type LowStockAlertPayload struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Quantity      int    `json:"quantity"`
	MinStockLevel int    `json:"min_stock_level"`
}

// StatsWarmupPayload selects the trailing window to warm.
type StatsWarmupPayload struct {
	Days int `json:"days"`
}

// IdempotencyCleanupPayload configures how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention string `json:"retention,omitempty"`
}

// NewLowStockAlertTask builds the alert task. Alerts for the same product and
// quantity share a task id so a burst of sales enqueues a single alert.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	id := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("LOWSTOCK:%d:%d", payload.ProductID, payload.Quantity)))
	return asynq.NewTask(TaskLowStockAlert, data, asynq.TaskID(id.String()), asynq.MaxRetry(5)), nil
}

// NewStatsWarmupTask builds a warmup task for the trailing number of days.
func NewStatsWarmupTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(StatsWarmupPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data, asynq.MaxRetry(1), asynq.Timeout(time.Minute)), nil
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	payload := IdempotencyCleanupPayload{}
	if retention > 0 {
		payload.Retention = retention.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3)), nil
}
