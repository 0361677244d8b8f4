package interfaces

import (
	"context"

	"signal-trader/internal/types"
)

// AuditLog persists order outcomes. Append returns only after the entry is durable.
type AuditLog interface {
	Append(e types.OrderLogEntry) error
}

// Alerter delivers operator notifications.
type Alerter interface {
	Alert(ctx context.Context, a types.Alert) error
}
