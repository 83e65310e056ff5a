package sales

import (
	"context"
	"fmt"
	"log/slog"
)

// LaunchGate decides whether a fulfillment launch proceeds. Manual-delivery
// orders swallow automatic launches at confirmation and only ship when the
// launch carries an explicit override context.
type LaunchGate struct {
	launcher Launcher
	logger   *slog.Logger
}

func NewLaunchGate(launcher Launcher, logger *slog.Logger) *LaunchGate {
	return &LaunchGate{launcher: launcher, logger: logger}
}

// LaunchStockRules starts fulfillment for the given lines unless the order
// defers delivery. Returns true when a launch actually happened.
func (g *LaunchGate) LaunchStockRules(ctx context.Context, order *Order, lines []OrderLine, lctx LaunchContext) (bool, error) {
	if order.ManualDelivery && !lctx.IsManualOverride() {
		g.logger.Info("suppressing automatic fulfillment for manual-delivery order",
			"order_id", order.ID,
			"doc_number", order.DocNumber,
		)
		return false, nil
	}
	if len(lines) == 0 {
		return false, nil
	}
	if err := g.launcher.Launch(ctx, order, lines, lctx); err != nil {
		return false, fmt.Errorf("launch fulfillment for order %d: %w", order.ID, err)
	}
	return true, nil
}
