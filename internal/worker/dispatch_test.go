package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/cache"
	"github.com/kartsync/kartsync/internal/dispatcher"
	"github.com/kartsync/kartsync/internal/storage"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	started  []*core.Session
	ended    []*core.Session
	vehicles []*core.VehicleInfo
	moves    []*core.MoveRecord
	states   []*core.StateRecord
	startErr error
}

var _ storage.Backend = (*mockBackend)(nil)

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.started = append(b.started, s)
	return nil
}

func (b *mockBackend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, s)
	return nil
}

func (b *mockBackend) AddVehicle(v *core.VehicleInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vehicles = append(b.vehicles, v)
	return nil
}

func (b *mockBackend) RecordMove(m *core.MoveRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moves = append(b.moves, m)
	return nil
}

func (b *mockBackend) RecordState(s *core.StateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, s)
	return nil
}

func (b *mockBackend) moveTimestamps() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.moves))
	for i, m := range b.moves {
		out[i] = m.Move.Timestamp
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *mockBackend, *dispatcher.Dispatcher) {
	t.Helper()
	backend := &mockBackend{}
	m := NewManager(Dependencies{VehicleCache: cache.NewVehicleCache()}, backend)
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	m.RegisterHandlers(d)
	return m, backend, d
}

func shutdown(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func testVehicle(id string) core.VehicleInfo {
	return core.VehicleInfo{ID: id, SessionID: "s1", Spawn: core.NewPose(mgl64.Vec3{}, 0)}
}

func TestRegisterHandlers_RegistersAllCommands(t *testing.T) {
	_, _, d := newTestManager(t)

	for _, cmd := range []string{CmdSessionStart, CmdSessionEnd, CmdVehicleAdd, CmdMove, CmdState} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestSessionStart_ResetsCacheAndStarts(t *testing.T) {
	m, backend, d := newTestManager(t)
	m.deps.VehicleCache.Add(testVehicle("stale"))

	s := &core.Session{ID: "s1"}
	_, err := d.Dispatch(dispatcher.Event{Command: CmdSessionStart, Payload: s})
	require.NoError(t, err)

	assert.Equal(t, 0, m.deps.VehicleCache.Len())
	require.Len(t, backend.started, 1)
	assert.Same(t, s, backend.started[0])
}

func TestSessionStart_BackendError(t *testing.T) {
	m, backend, _ := newTestManager(t)
	backend.startErr = errors.New("disk full")

	_, err := m.handleSessionStart(dispatcher.Event{Command: CmdSessionStart, Payload: &core.Session{ID: "s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHandlers_RejectWrongPayload(t *testing.T) {
	m, _, _ := newTestManager(t)

	tests := []struct {
		name string
		fn   dispatcher.HandlerFunc
	}{
		{"session start", m.handleSessionStart},
		{"session end", m.handleSessionEnd},
		{"vehicle", m.handleVehicleAdd},
		{"move", m.handleMove},
		{"state", m.handleState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn(dispatcher.Event{Command: tt.name, Payload: 42})
			assert.ErrorIs(t, err, ErrBadPayload)
		})
	}
}

func TestVehicleAdd_CachesAndRecords(t *testing.T) {
	m, backend, d := newTestManager(t)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdVehicleAdd, Payload: testVehicle("kart-1")})
	require.NoError(t, err)
	shutdown(t, d)

	_, ok := m.deps.VehicleCache.Get("kart-1")
	assert.True(t, ok)
	require.Len(t, backend.vehicles, 1)
	assert.Equal(t, int64(1), m.Stats().Vehicles)
}

func TestMove_UnknownVehicleIsTooEarly(t *testing.T) {
	m, backend, _ := newTestManager(t)

	_, err := m.handleMove(dispatcher.Event{Command: CmdMove, Payload: core.MoveRecord{VehicleID: "ghost"}})
	assert.ErrorIs(t, err, ErrTooEarlyForStateAssociation)

	_, err = m.handleState(dispatcher.Event{Command: CmdState, Payload: core.StateRecord{VehicleID: "ghost"}})
	assert.ErrorIs(t, err, ErrTooEarlyForStateAssociation)

	assert.Empty(t, backend.moves)
	assert.Equal(t, int64(2), m.Stats().Dropped)
}

func TestBufferedMoves_KeepArrivalOrder(t *testing.T) {
	m, backend, d := newTestManager(t)
	_, err := d.Dispatch(dispatcher.Event{Command: CmdVehicleAdd, Payload: testVehicle("kart-1")})
	require.NoError(t, err)

	want := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		ts := float64(i) / 60
		want = append(want, ts)
		_, err := d.Dispatch(dispatcher.Event{Command: CmdMove, Payload: core.MoveRecord{
			VehicleID: "kart-1", Move: core.Move{Timestamp: ts},
		}})
		require.NoError(t, err)
	}
	_, err = d.Dispatch(dispatcher.Event{Command: CmdState, Payload: core.StateRecord{VehicleID: "kart-1", Tick: 9}})
	require.NoError(t, err)

	shutdown(t, d)

	assert.Equal(t, want, backend.moveTimestamps())
	assert.Len(t, backend.states, 1)
	assert.Equal(t, Stats{Vehicles: 1, Moves: 100, States: 1}, m.Stats())
}

func TestSessionEnd(t *testing.T) {
	_, backend, d := newTestManager(t)

	s := &core.Session{ID: "s1", EndTime: time.Now()}
	_, err := d.Dispatch(dispatcher.Event{Command: CmdSessionEnd, Payload: s})
	require.NoError(t, err)
	require.Len(t, backend.ended, 1)
}

type statsBackend struct {
	mockBackend
}

func (statsBackend) QueueLengths() map[string]int      { return map[string]int{"moves": 3} }
func (statsBackend) LastWriteDuration() time.Duration { return 15 * time.Millisecond }

func TestQueueStats(t *testing.T) {
	plain := NewManager(Dependencies{}, &mockBackend{})
	assert.Zero(t, plain.GetLastDBWriteDuration())
	assert.Nil(t, plain.GetQueueLengths())

	withStats := NewManager(Dependencies{}, &statsBackend{})
	assert.Equal(t, 15*time.Millisecond, withStats.GetLastDBWriteDuration())
	assert.Equal(t, map[string]int{"moves": 3}, withStats.GetQueueLengths())
}

// gatedBackend holds every write until gate is closed.
type gatedBackend struct {
	mockBackend
	gate chan struct{}
}

func (b *gatedBackend) AddVehicle(v *core.VehicleInfo) error {
	<-b.gate
	return b.mockBackend.AddVehicle(v)
}

func (b *gatedBackend) RecordMove(r *core.MoveRecord) error {
	<-b.gate
	return b.mockBackend.RecordMove(r)
}

func TestVehicleAdd_DoesNotWaitForBackend(t *testing.T) {
	backend := &gatedBackend{gate: make(chan struct{})}
	m := NewManager(Dependencies{}, backend)
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	m.RegisterHandlers(d)

	returned := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(dispatcher.Event{Command: CmdVehicleAdd, Payload: testVehicle("kart-1")})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatching a vehicle waited on the backend")
	}

	close(backend.gate)
	shutdown(t, d)
	assert.Len(t, backend.vehicles, 1)
}

func TestMoves_WaitForRoomInsteadOfDropping(t *testing.T) {
	backend := &gatedBackend{gate: make(chan struct{})}
	m := NewManager(Dependencies{QueueSize: 2}, backend)
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	m.RegisterHandlers(d)

	done := make(chan error, 1)
	go func() {
		if _, err := d.Dispatch(dispatcher.Event{Command: CmdVehicleAdd, Payload: testVehicle("kart-1")}); err != nil {
			done <- err
			return
		}
		for i := 1; i <= 50; i++ {
			_, err := d.Dispatch(dispatcher.Event{Command: CmdMove, Payload: core.MoveRecord{
				VehicleID: "kart-1", Move: core.Move{Timestamp: float64(i)}, Accepted: true,
			}})
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	close(backend.gate)
	require.NoError(t, <-done)
	shutdown(t, d)

	assert.Len(t, backend.moveTimestamps(), 50)
	assert.Equal(t, int64(50), m.Stats().Moves)
}
