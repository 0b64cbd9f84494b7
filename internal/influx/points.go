package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementHubStatus      = "hub_status"
	MeasurementReconciliation = "reconciliation"
)

// HubStatus is one sample of the authority host.
type HubStatus struct {
	SessionID         string
	Vehicles          int
	Connections       int
	MovesAccepted     int64
	MovesRejected     int64
	TickDuration      time.Duration
	LastWriteDuration time.Duration
	QueueLengths      map[string]int
}

// HubStatusPoint builds a hub_status point.
func HubStatusPoint(s HubStatus, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementHubStatus).
		AddTag("sessionId", s.SessionID).
		AddField("vehicles", s.Vehicles).
		AddField("connections", s.Connections).
		AddField("movesAccepted", s.MovesAccepted).
		AddField("movesRejected", s.MovesRejected).
		AddField("tickDurationMs", float64(s.TickDuration.Microseconds())/1000).
		AddField("lastWriteDurationMs", float64(s.LastWriteDuration.Microseconds())/1000).
		SetTime(at)
	for name, n := range s.QueueLengths {
		p.AddField("queue_"+name, n)
	}
	return p
}

// ReconciliationPoint builds a reconciliation point for one applied state.
func ReconciliationPoint(sessionID, vehicleID, role string, correction float64, replayed int, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementReconciliation).
		AddTag("sessionId", sessionID).
		AddTag("vehicleId", vehicleID).
		AddTag("role", role).
		AddField("correction", correction).
		AddField("replayed", replayed).
		SetTime(at)
}
