package storage_test

import (
	"testing"

	"github.com/kartsync/kartsync/internal/storage"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/stretchr/testify/assert"
)

var _ storage.Backend = storage.Noop{}

func TestNoop(t *testing.T) {
	var b storage.Backend = storage.Noop{}

	assert.NoError(t, b.Init())
	assert.NoError(t, b.StartSession(&core.Session{ID: "s"}))
	assert.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: "v"}))
	assert.NoError(t, b.RecordMove(&core.MoveRecord{}))
	assert.NoError(t, b.RecordState(&core.StateRecord{}))
	assert.NoError(t, b.EndSession(&core.Session{ID: "s"}))
	assert.NoError(t, b.Close())

	_, ok := b.(storage.QueueStats)
	assert.False(t, ok)
}
