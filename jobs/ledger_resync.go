package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/sales"
)

const (
	// TaskLedgerResync re-derives procured balances from movements. Run
	// periodically as a safety net; every movement mutation already pushes
	// its own recompute.
	TaskLedgerResync = "ledger:resync"
)

// LedgerResyncPayload selects the orders to resync. An empty OrderIDs list
// sweeps every confirmed order.
type LedgerResyncPayload struct {
	OrderIDs []int64 `json:"order_ids,omitempty"`
}

// NewLedgerResyncTask builds a resync task.
func NewLedgerResyncTask(payload LedgerResyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerResync, body, asynq.Queue(QueueDefault)), nil
}

// LedgerSource lists orders and recomputes their balances.
type LedgerSource interface {
	ListOrders(ctx context.Context, filters sales.ListFilters) ([]sales.Order, int, error)
	RecomputeOrderBalances(ctx context.Context, orderID int64) error
}

// NewLedgerResyncHandler returns the handler processing TaskLedgerResync.
func NewLedgerResyncHandler(source LedgerSource, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerResyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		orderIDs := payload.OrderIDs
		if len(orderIDs) == 0 {
			ids, err := confirmedOrderIDs(ctx, source)
			if err != nil {
				return err
			}
			orderIDs = ids
		}

		// Orders are independent; a failing one is logged and skipped so the
		// sweep still covers the rest.
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, id := range orderIDs {
			id := id
			g.Go(func() error {
				if err := source.RecomputeOrderBalances(ctx, id); err != nil {
					logger.Warn("ledger resync failed for order", "order_id", id, "error", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("ledger resync complete", "orders", len(orderIDs))
		return nil
	}
}

func confirmedOrderIDs(ctx context.Context, source LedgerSource) ([]int64, error) {
	status := sales.OrderStatusConfirmed
	var ids []int64
	for offset := 0; ; {
		orders, total, err := source.ListOrders(ctx, sales.ListFilters{
			Status: &status,
			Limit:  200,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		offset += len(orders)
		if len(orders) == 0 || offset >= total {
			return ids, nil
		}
	}
}
