package events

import (
	"context"

	"github.com/domainhooks/hooks/go/internal/models"
)

// StatusNotifier is told about every status a DomainEvent enters, including
// created. Implementations must not block the caller for long.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, change models.StatusChange)
}

type NoOpNotifier struct{}

func (NoOpNotifier) NotifyStatus(context.Context, models.StatusChange) {}
