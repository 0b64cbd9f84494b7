package session

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Placeholder(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, "No session started", ctx.Get().Name)
	assert.Empty(t, ctx.ID())
	assert.Nil(t, ctx.LogAttrs())
}

func TestNew_AssignsUUID(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New("practice", start, 60, 20, core.VehicleParams{Mass: 1000})

	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, start, s.StartTime)
	assert.Equal(t, 60, s.TickHz)
	assert.Equal(t, 20, s.ReplicationHz)
	assert.Equal(t, 1000.0, s.Params.Mass)
	assert.NotEqual(t, s.ID, New("practice", start, 60, 20, core.VehicleParams{}).ID)
}

func TestContext_SetAndEnd(t *testing.T) {
	ctx := NewContext()
	s := New("race", time.Now(), 60, 20, core.VehicleParams{})
	ctx.Set(s)

	assert.Equal(t, s.ID, ctx.ID())
	assert.Equal(t, []slog.Attr{slog.String("sessionId", s.ID)}, ctx.LogAttrs())

	end := s.StartTime.Add(time.Minute)
	got := ctx.End(end)
	assert.Equal(t, end, got.EndTime)
	assert.Equal(t, end, ctx.Get().EndTime)
}

func TestContext_ConcurrentAccess(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.Set(New("s", time.Now(), 60, 20, core.VehicleParams{}))
		}()
		go func() {
			defer wg.Done()
			_ = ctx.ID()
			_ = ctx.Get()
		}()
	}
	wg.Wait()
	assert.NotEmpty(t, ctx.ID())
}
