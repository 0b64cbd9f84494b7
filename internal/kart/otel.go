package kart

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kartsync/kartsync/internal/kart"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	movesAccepted metric.Int64Counter
	movesRejected metric.Int64Counter
	staleStates   metric.Int64Counter
	blocked       metric.Int64Counter
	correction    metric.Float64Histogram
	replayed      metric.Int64Histogram
}

// newMetrics builds instruments on the global meter provider, which is a
// no-op until one is registered.
func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	if out.movesAccepted, err = m.Int64Counter("kart.moves.accepted",
		metric.WithDescription("Moves simulated by the authority")); err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	if out.movesRejected, err = m.Int64Counter("kart.moves.rejected",
		metric.WithDescription("Moves dropped by authority validation")); err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	if out.staleStates, err = m.Int64Counter("kart.states.stale",
		metric.WithDescription("Authoritative states ignored as not newer")); err != nil {
		return nil, fmt.Errorf("creating stale counter: %w", err)
	}
	if out.blocked, err = m.Int64Counter("kart.collisions.blocking",
		metric.WithDescription("Sweeps ending in a blocking hit")); err != nil {
		return nil, fmt.Errorf("creating collision counter: %w", err)
	}
	if out.correction, err = m.Float64Histogram("kart.reconcile.correction",
		metric.WithDescription("Positional error removed by reconciliation"),
		metric.WithUnit("{unit}")); err != nil {
		return nil, fmt.Errorf("creating correction histogram: %w", err)
	}
	if out.replayed, err = m.Int64Histogram("kart.reconcile.replayed",
		metric.WithDescription("Moves replayed per reconciliation")); err != nil {
		return nil, fmt.Errorf("creating replayed histogram: %w", err)
	}
	return &out, nil
}

func roleAttr(r Role) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("role", r.String()))
}

func (m *metrics) recordCorrection(r Role, c Correction) {
	ctx := context.Background()
	m.correction.Record(ctx, c.Error, roleAttr(r))
	m.replayed.Record(ctx, int64(c.Replayed), roleAttr(r))
}
