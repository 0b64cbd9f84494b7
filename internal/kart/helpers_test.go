package kart

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/physics"
	"github.com/kartsync/kartsync/internal/queue"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/stretchr/testify/require"
)

const tick = 1.0 / 60

func newTestMovement(t *testing.T, world collision.World) *Movement {
	t.Helper()
	model, err := physics.New(physics.DefaultParams())
	require.NoError(t, err)
	return NewMovement(model, world)
}

func newTestVehicle(t *testing.T, isAuthority, isLocal bool, sender MoveSender) *Vehicle {
	t.Helper()
	v, err := New(Config{
		ID:                  "kart-1",
		Params:              physics.DefaultParams(),
		Spawn:               core.NewPose(mgl64.Vec3{}, 0),
		IsAuthority:         isAuthority,
		IsLocallyControlled: isLocal,
		Sender:              sender,
	})
	require.NoError(t, err)
	return v
}

// movesAt builds consecutive moves of one tick each, stamped at ts.
func movesAt(throttle, steering float64, ts ...float64) []core.Move {
	out := make([]core.Move, len(ts))
	for i, at := range ts {
		out[i] = core.Move{Throttle: throttle, Steering: steering, DeltaTime: tick, Timestamp: at}
	}
	return out
}

func queueOf(moves ...core.Move) *queue.Queue[core.Move] {
	q := queue.New[core.Move]()
	q.Push(moves...)
	return q
}

func timestamps(moves []core.Move) []float64 {
	out := make([]float64, len(moves))
	for i, m := range moves {
		out[i] = m.Timestamp
	}
	return out
}

// senderLog records moves forwarded by a predictor.
type senderLog struct {
	moves []core.Move
}

func (s *senderLog) SendMove(m core.Move) {
	s.moves = append(s.moves, m)
}
