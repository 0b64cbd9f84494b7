// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartsync/kartsync/internal/database"
	"github.com/kartsync/kartsync/internal/logging"
	"github.com/kartsync/kartsync/internal/model"
	"github.com/kartsync/kartsync/internal/model/convert"
	"github.com/kartsync/kartsync/internal/queue"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// ErrNoDatabase is returned by operations that need a connection when the
// backend runs queue-only.
var ErrNoDatabase = errors.New("no database configured")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB // nil runs the backend queue-only
	LogManager    *logging.SlogManager
	DBLogger      zerolog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Vehicles      *queue.Queue[model.Vehicle]
	Moves         *queue.Queue[model.Move]
	VehicleStates *queue.Queue[model.VehicleState]
	Performances  *queue.Queue[model.Performance]
}

func newQueues() *queues {
	return &queues{
		Vehicles:      queue.New[model.Vehicle](),
		Moves:         queue.New[model.Move](),
		VehicleStates: queue.New[model.VehicleState](),
		Performances:  queue.New[model.Performance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	writeMu   sync.Mutex // serializes flushes
	lastWrite atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps: deps,
	}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	if err := database.Setup(b.deps.DB, b.deps.DBLogger); err != nil {
		close(b.done)
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return nil
}

// StartSession inserts the session row synchronously so later rows can
// reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	row, err := convert.SessionToGorm(*s)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// EndSession flushes pending rows and stamps the end time.
func (b *Backend) EndSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	b.Flush()
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", s.ID).Update("end_time", end).Error
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", s.ID, err)
	}
	return nil
}

// AddVehicle converts a core vehicle to GORM and pushes to the write queue.
func (b *Backend) AddVehicle(v *core.VehicleInfo) error {
	b.queues.Vehicles.Push(convert.VehicleToGorm(*v))
	return nil
}

// RecordMove converts and queues a received move.
func (b *Backend) RecordMove(m *core.MoveRecord) error {
	b.queues.Moves.Push(convert.MoveToGorm(*m))
	return nil
}

// RecordState converts and queues a replicated state.
func (b *Backend) RecordState(s *core.StateRecord) error {
	b.queues.VehicleStates.Push(convert.StateToGorm(*s))
	return nil
}

// RecordPerformance queues a host health snapshot.
func (b *Backend) RecordPerformance(p *model.Performance) error {
	b.queues.Performances.Push(*p)
	return nil
}

// QueueLengths reports the rows waiting for the next flush.
func (b *Backend) QueueLengths() map[string]int {
	if b.queues == nil {
		return map[string]int{}
	}
	return map[string]int{
		"vehicles":      b.queues.Vehicles.Len(),
		"moves":         b.queues.Moves.Len(),
		"vehicleStates": b.queues.VehicleStates.Len(),
		"performances":  b.queues.Performances.Len(),
	}
}

// LastWriteDuration is how long the last flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Flush writes every queue to the database. Vehicles go first so states
// and moves never precede the vehicle they belong to.
func (b *Backend) Flush() {
	if b.deps.DB == nil || b.queues == nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	log := b.deps.LogManager.WriteLog
	start := time.Now()

	writeQueue(b.deps.DB, b.queues.Vehicles, "vehicles", log)
	writeQueue(b.deps.DB, b.queues.Moves, "moves", log)
	writeQueue(b.deps.DB, b.queues.VehicleStates, "vehicle states", log)
	writeQueue(b.deps.DB, b.queues.Performances, "performances", log)

	b.lastWrite.Store(int64(time.Since(start)))
}

// writeQueue writes all items from a queue to the database in a transaction.
// Items are requeued when the insert fails.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	if err := tx.Commit().Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error committing %s: %v", name, err), "ERROR")
		q.Push(items...)
	}
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
