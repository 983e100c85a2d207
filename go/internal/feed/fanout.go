package feed

import (
	"context"

	"github.com/domainhooks/hooks/go/internal/events"
	"github.com/domainhooks/hooks/go/internal/models"
)

// Fanout forwards every change to each notifier in order.
type Fanout []events.StatusNotifier

func (f Fanout) NotifyStatus(ctx context.Context, change models.StatusChange) {
	for _, n := range f {
		n.NotifyStatus(ctx, change)
	}
}
