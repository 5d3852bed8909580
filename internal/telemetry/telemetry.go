package telemetry

import (
	"context"

	"github.com/edgebench/edgebench/pkg/models"
)

// Source provides point-in-time device metrics for the admission gate and for
// session snapshots. Implementations report a battery percentage of -1 when
// the platform exposes no battery.
type Source interface {
	Snapshot(ctx context.Context) (models.ResourceSnapshot, error)
}

// NoBattery is the sentinel battery reading for platforms without one.
const NoBattery = -1
