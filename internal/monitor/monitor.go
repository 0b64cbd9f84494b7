// Package monitor samples host health on an interval and publishes it to a
// status file, InfluxDB and the recording backend.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kartsync/kartsync/internal/influx"
	"github.com/kartsync/kartsync/internal/logging"
	"github.com/kartsync/kartsync/internal/model"
	"github.com/kartsync/kartsync/internal/session"
	"github.com/kartsync/kartsync/internal/worker"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 10 * time.Second

// HubStats is what the authority host reports about itself.
type HubStats struct {
	Vehicles      int
	Connections   int
	MovesAccepted int64
	MovesRejected int64
	TickDuration  time.Duration
	Inbox         int
}

// PerformanceRecorder is implemented by backends that persist snapshots.
type PerformanceRecorder interface {
	RecordPerformance(*model.Performance) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager     *logging.SlogManager
	SessionContext *session.Context
	WorkerManager  *worker.Manager
	HubStats       func() HubStats
	Influx         *influx.Manager     // optional
	Recorder       PerformanceRecorder // optional
	StatusDir      string              // empty disables the status file
	Interval       time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status as printable lines
// and as a performance row.
func (s *Service) GetProgramStatus(hub, writeQueues, lastWrite bool) (output []string, perf model.Performance) {
	var stats HubStats
	if s.deps.HubStats != nil {
		stats = s.deps.HubStats()
	}

	var queues map[string]int
	var lastWriteDuration time.Duration
	if s.deps.WorkerManager != nil {
		queues = s.deps.WorkerManager.GetQueueLengths()
		lastWriteDuration = s.deps.WorkerManager.GetLastDBWriteDuration()
	}
	writeQueuesObj := model.WriteQueueLengths{
		Vehicles:      queues["vehicles"],
		Moves:         queues["moves"],
		VehicleStates: queues["vehicleStates"],
	}

	perf = model.Performance{
		Time:                time.Now(),
		Vehicles:            stats.Vehicles,
		Connections:         stats.Connections,
		MovesAccepted:       stats.MovesAccepted,
		MovesRejected:       stats.MovesRejected,
		TickDurationMs:      float64(stats.TickDuration.Microseconds()) / 1000,
		WriteQueueLengths:   writeQueuesObj,
		LastWriteDurationMs: float32(lastWriteDuration.Microseconds()) / 1000,
	}
	if s.deps.SessionContext != nil {
		perf.SessionID = s.deps.SessionContext.ID()
	}

	if hub {
		output = append(output, marshalStatus(stats))
	}
	if writeQueues {
		output = append(output, marshalStatus(writeQueuesObj))
	}
	if lastWrite {
		output = append(output, marshalStatus(perf.LastWriteDurationMs))
	}
	return output, perf
}

func marshalStatus(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "%s"}`, err)
	}
	return string(data)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		var statusFile *os.File
		if s.deps.StatusDir != "" {
			var err error
			statusFile, err = os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sample(statusFile)
			}
		}
	}()

	return nil
}

// sample takes one snapshot and publishes it. Nothing is published before
// a session has started.
func (s *Service) sample(statusFile *os.File) {
	if s.deps.SessionContext != nil && s.deps.SessionContext.ID() == "" {
		return
	}
	logger := s.deps.LogManager.Logger()
	statusStr, perf := s.GetProgramStatus(true, true, true)

	if statusFile != nil {
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		for _, line := range statusStr {
			_, _ = statusFile.WriteString(line + "\n")
		}
	}

	if s.deps.Influx != nil {
		var queues map[string]int
		if s.deps.WorkerManager != nil {
			queues = s.deps.WorkerManager.GetQueueLengths()
		}
		point := influx.HubStatusPoint(influx.HubStatus{
			SessionID:         perf.SessionID,
			Vehicles:          perf.Vehicles,
			Connections:       perf.Connections,
			MovesAccepted:     perf.MovesAccepted,
			MovesRejected:     perf.MovesRejected,
			TickDuration:      time.Duration(perf.TickDurationMs * float64(time.Millisecond)),
			LastWriteDuration: time.Duration(float64(perf.LastWriteDurationMs) * float64(time.Millisecond)),
			QueueLengths:      queues,
		}, perf.Time)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketHub, point); err != nil {
			logger.Error("Error writing hub status to InfluxDB", "error", err)
		}
	}

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordPerformance(&perf); err != nil {
			logger.Error("Error recording performance", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
