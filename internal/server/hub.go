// Package server hosts the authoritative simulation: it owns every vehicle,
// applies submitted moves in arrival order and replicates the resulting
// states to connected clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/dispatcher"
	"github.com/kartsync/kartsync/internal/kart"
	"github.com/kartsync/kartsync/internal/physics"
	"github.com/kartsync/kartsync/internal/session"
	"github.com/kartsync/kartsync/internal/sim"
	"github.com/kartsync/kartsync/internal/worker"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/kartsync/kartsync/pkg/streaming"
)

// DefaultSpawnSpacing separates spawn slots, in world units.
const DefaultSpawnSpacing = 500.0

// spawnColumns is the width of the spawn grid.
const spawnColumns = 4

// ErrAlreadyStarted is returned by Start on a hub that has a session.
var ErrAlreadyStarted = errors.New("hub already started")

// ErrSpawnOutsideArena is returned by NewHub when a configured spawn point
// lies outside the arena walls.
var ErrSpawnOutsideArena = errors.New("spawn point outside arena")

// Peer is a connected client as the hub sees it. Send must not block.
type Peer interface {
	Send(data []byte) error
	Close() error
}

// Driver supplies controls for the host-driven vehicle.
type Driver interface {
	Next(dt float64) (throttle, steering float64)
}

// Config holds everything the hub needs.
type Config struct {
	Name         string
	Sim          config.SimConfig
	Params       core.VehicleParams
	World        collision.World
	SpawnSpacing float64
	SpawnPoints  []mgl64.Vec3 // replaces the grid when set, reused in order

	// HostDriver, when set, spawns a vehicle driven on the host itself.
	HostDriver Driver

	Session    *session.Context
	Dispatcher *dispatcher.Dispatcher // nil disables recording
	Logger     *slog.Logger
	Clock      sim.Clock
}

// Stats is a snapshot of hub counters. Safe to call from any goroutine.
type Stats struct {
	Vehicles      int
	Connections   int
	MovesAccepted int64
	MovesRejected int64
	TickDuration  time.Duration
	Tick          uint64
	Inbox         int // posted work not yet run by the loop
}

type entry struct {
	vehicle *kart.Vehicle
	info    core.VehicleInfo
	peer    Peer // nil for the host vehicle
}

// Hub is the authority host. All vehicle state is owned by its loop
// goroutine; Join, SubmitMove and Leave only post work to it.
type Hub struct {
	cfg    Config
	loop   *sim.Loop
	logger *slog.Logger

	// loop-owned
	vehicles map[string]*entry
	order    []string
	byPeer   map[Peer]string
	spawned  int
	hostID   string

	started  atomic.Bool
	stopOnce sync.Once

	vehicleCount atomic.Int64
	peerCount    atomic.Int64
	accepted     atomic.Int64
	rejected     atomic.Int64
	tickNanos    atomic.Int64
	tick         atomic.Uint64
}

// NewHub builds a hub. Call Start before ticking it.
func NewHub(cfg Config) (*Hub, error) {
	if err := physics.Validate(cfg.Params); err != nil {
		return nil, fmt.Errorf("creating hub: %w", err)
	}
	if cfg.Sim.TickHz <= 0 {
		cfg.Sim.TickHz = 60
	}
	if cfg.Sim.ReplicationHz <= 0 || cfg.Sim.ReplicationHz > cfg.Sim.TickHz {
		cfg.Sim.ReplicationHz = cfg.Sim.TickHz
	}
	if cfg.SpawnSpacing <= 0 {
		cfg.SpawnSpacing = DefaultSpawnSpacing
	}
	if cfg.World == nil {
		cfg.World = collision.Open{}
	}
	if arena, ok := cfg.World.(collision.Arena); ok {
		for i, p := range cfg.SpawnPoints {
			if !arena.Contains(p) {
				return nil, fmt.Errorf("creating hub: spawn point %d at (%g, %g): %w", i, p.X(), p.Y(), ErrSpawnOutsideArena)
			}
		}
	}
	if cfg.Session == nil {
		cfg.Session = session.NewContext()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = sim.SystemClock{}
	}

	h := &Hub{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "hub"),
		vehicles: make(map[string]*entry),
		byPeer:   make(map[Peer]string),
	}
	h.loop = sim.NewLoop(sim.StepperFunc(h.step), sim.Config{
		TickHz:          cfg.Sim.TickHz,
		CatchupMaxTicks: cfg.Sim.CatchupMaxTicks,
	}, sim.Hooks{AfterStep: h.afterStep}, cfg.Clock)
	return h, nil
}

// Start opens a recording session and spawns the host vehicle. It must
// run before the loop does.
func (h *Hub) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	now := h.cfg.Clock.Now()
	s := session.New(h.cfg.Name, now, h.cfg.Sim.TickHz, h.cfg.Sim.ReplicationHz, h.cfg.Params)
	h.cfg.Session.Set(s)
	if err := h.dispatch(worker.CmdSessionStart, s, now); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	h.logger.Info("Session started", "sessionId", s.ID, "tickHz", s.TickHz, "replicationHz", s.ReplicationHz)

	if h.cfg.HostDriver != nil {
		e, err := h.spawn(h.cfg.Name, nil, true)
		if err != nil {
			return err
		}
		h.hostID = e.info.ID
	}
	return nil
}

// Run ticks the hub until ctx is done, then ends the session.
func (h *Hub) Run(ctx context.Context) {
	h.loop.Run(ctx)
	h.Stop()
}

// Tick runs posted work and one simulation step.
func (h *Hub) Tick(tc sim.TickContext) sim.StepResult {
	start := h.cfg.Clock.Now()
	res := h.loop.Advance(tc)
	res.Duration = h.cfg.Clock.Now().Sub(start)
	h.afterStep(res)
	return res
}

// Stop ends the session and disconnects every peer. It must not run
// concurrently with the loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		for _, id := range h.order {
			if p := h.vehicles[id].peer; p != nil {
				_ = p.Close()
			}
		}
		if !h.started.Load() {
			return
		}
		now := h.cfg.Clock.Now()
		s := h.cfg.Session.End(now)
		if err := h.dispatch(worker.CmdSessionEnd, &s, now); err != nil {
			h.logger.Error("Error ending session", "error", err)
		}
		h.logger.Info("Session ended", "sessionId", s.ID)
	})
}

// Stats returns the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Vehicles:      int(h.vehicleCount.Load()),
		Connections:   int(h.peerCount.Load()),
		MovesAccepted: h.accepted.Load(),
		MovesRejected: h.rejected.Load(),
		TickDuration:  time.Duration(h.tickNanos.Load()),
		Tick:          h.tick.Load(),
		Inbox:         h.loop.Pending(),
	}
}

// Join spawns a vehicle for peer and sends it a welcome.
func (h *Hub) Join(peer Peer, name string) {
	h.loop.Post(func() { h.join(peer, name) })
}

// SubmitMove hands a move from peer's vehicle to the authority simulator.
// Rejected moves are dropped without telling the sender.
func (h *Hub) SubmitMove(peer Peer, m core.Move) {
	h.loop.Post(func() { h.submitMove(peer, m) })
}

// Leave despawns peer's vehicle.
func (h *Hub) Leave(peer Peer) {
	h.loop.Post(func() { h.leave(peer) })
}

func (h *Hub) join(peer Peer, name string) {
	if _, ok := h.byPeer[peer]; ok {
		return
	}
	e, err := h.spawn(name, peer, false)
	if err != nil {
		h.logger.Error("Error spawning vehicle", "error", err, "name", name)
		_ = peer.Close()
		return
	}
	h.byPeer[peer] = e.info.ID
	h.peerCount.Add(1)

	welcome := streaming.WelcomePayload{
		SessionID:     h.cfg.Session.ID(),
		VehicleID:     e.info.ID,
		TickHz:        h.cfg.Sim.TickHz,
		ReplicationHz: h.cfg.Sim.ReplicationHz,
		Params:        h.cfg.Params,
		Vehicles:      h.snapshots(),
	}
	data, err := streaming.Encode(streaming.TypeWelcome, welcome)
	if err != nil {
		h.logger.Error("Error encoding welcome", "error", err)
		return
	}
	if err := peer.Send(data); err != nil {
		h.drop(peer)
		return
	}
	h.logger.Info("Vehicle joined", "vehicleId", e.info.ID, "name", name)
}

func (h *Hub) spawn(name string, peer Peer, hostDriven bool) (*entry, error) {
	id := uuid.NewString()
	spawn := core.NewPose(h.spawnPoint(h.spawned), 0)
	h.spawned++

	v, err := kart.New(kart.Config{
		ID:                  id,
		Params:              h.cfg.Params,
		World:               h.cfg.World,
		Spawn:               spawn,
		IsAuthority:         true,
		IsLocallyControlled: hostDriven,
	})
	if err != nil {
		return nil, err
	}

	owner := name
	if hostDriven {
		owner = ""
	}
	e := &entry{
		vehicle: v,
		peer:    peer,
		info: core.VehicleInfo{
			ID:         id,
			SessionID:  h.cfg.Session.ID(),
			Name:       name,
			Owner:      owner,
			HostDriven: hostDriven,
			JoinTime:   h.cfg.Clock.Now(),
			Spawn:      spawn,
		},
	}
	h.vehicles[id] = e
	h.order = append(h.order, id)
	h.vehicleCount.Add(1)

	if err := h.dispatch(worker.CmdVehicleAdd, e.info, e.info.JoinTime); err != nil {
		h.logger.Error("Error recording vehicle", "error", err, "vehicleId", id)
	}
	return e, nil
}

func (h *Hub) spawnPoint(slot int) mgl64.Vec3 {
	if n := len(h.cfg.SpawnPoints); n > 0 {
		return h.cfg.SpawnPoints[slot%n]
	}
	return mgl64.Vec3{
		float64(slot%spawnColumns) * h.cfg.SpawnSpacing,
		float64(slot/spawnColumns) * h.cfg.SpawnSpacing,
		0,
	}
}

func (h *Hub) submitMove(peer Peer, m core.Move) {
	id, ok := h.byPeer[peer]
	if !ok {
		return
	}
	e := h.vehicles[id]
	err := e.vehicle.SubmitMove(m)
	h.recordMove(id, m, err)
}

func (h *Hub) recordMove(id string, m core.Move, err error) {
	if err != nil {
		h.rejected.Add(1)
		h.logger.Debug("Move rejected", "vehicleId", id, "error", err)
	} else {
		h.accepted.Add(1)
	}
	now := h.cfg.Clock.Now()
	rec := core.MoveRecord{
		SessionID:  h.cfg.Session.ID(),
		VehicleID:  id,
		Move:       m,
		Accepted:   err == nil,
		ReceivedAt: now,
	}
	if err := h.dispatch(worker.CmdMove, rec, now); err != nil {
		h.logger.Debug("Error recording move", "error", err)
	}
}

func (h *Hub) leave(peer Peer) {
	id, ok := h.byPeer[peer]
	if !ok {
		return
	}
	delete(h.byPeer, peer)
	h.peerCount.Add(-1)
	h.remove(id)
	h.logger.Info("Vehicle left", "vehicleId", id)

	data, err := streaming.Encode(streaming.TypeDespawn, streaming.DespawnPayload{VehicleID: id})
	if err != nil {
		h.logger.Error("Error encoding despawn", "error", err)
		return
	}
	h.broadcast(data)
}

// drop disconnects a peer that cannot keep up.
func (h *Hub) drop(peer Peer) {
	_ = peer.Close()
	h.leave(peer)
}

func (h *Hub) remove(id string) {
	if _, ok := h.vehicles[id]; !ok {
		return
	}
	delete(h.vehicles, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.vehicleCount.Add(-1)
}

func (h *Hub) step(tc sim.TickContext) {
	h.tick.Store(tc.Tick)

	if h.hostID != "" {
		if e, ok := h.vehicles[h.hostID]; ok {
			h.driveHost(e, tc.Delta)
		}
	}
	for _, id := range h.order {
		if id == h.hostID {
			continue
		}
		// authority-serving vehicles only move on SubmitMove
		_ = h.vehicles[id].vehicle.Advance(tc.Delta)
	}

	if replicationDue(tc.Tick, h.cfg.Sim.ReplicationHz, h.cfg.Sim.TickHz) {
		h.replicate(tc)
	}
}

// replicationDue reports whether tick starts a new replication period.
// Periods are counted as floor(tick*replicationHz/tickHz), so exactly
// replicationHz batches go out per tickHz ticks whether or not the rates
// divide evenly.
func replicationDue(tick uint64, replicationHz, tickHz int) bool {
	if tick == 0 {
		return true
	}
	r, t := uint64(replicationHz), uint64(tickHz)
	return tick*r/t != (tick-1)*r/t
}

func (h *Hub) driveHost(e *entry, dt float64) {
	if !(dt > 0) {
		return
	}
	throttle, steering := h.cfg.HostDriver.Next(dt)
	e.vehicle.SetInput(throttle, steering)
	if err := e.vehicle.Advance(dt); err != nil {
		h.rejected.Add(1)
		h.logger.Debug("Host move rejected", "vehicleId", e.info.ID, "error", err)
		return
	}
	h.recordMove(e.info.ID, e.vehicle.AuthoritativeState().LastMove, nil)
}

// replicate sends every state that changed since the last batch.
func (h *Hub) replicate(tc sim.TickContext) {
	batch := streaming.StateBatchPayload{Tick: tc.Tick}
	for _, id := range h.order {
		e := h.vehicles[id]
		state, dirty := e.vehicle.TakeReplication()
		if !dirty {
			continue
		}
		batch.States = append(batch.States, streaming.VehicleSnapshot{
			VehicleID: id,
			Name:      e.info.Name,
			State:     state,
		})
		rec := core.StateRecord{
			SessionID: h.cfg.Session.ID(),
			VehicleID: id,
			Tick:      tc.Tick,
			Time:      tc.Now,
			State:     state,
		}
		if err := h.dispatch(worker.CmdState, rec, tc.Now); err != nil {
			h.logger.Debug("Error recording state", "error", err)
		}
	}
	if len(batch.States) == 0 {
		return
	}

	data, err := streaming.Encode(streaming.TypeStateBatch, batch)
	if err != nil {
		h.logger.Error("Error encoding state batch", "error", err)
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	var failed []Peer
	for _, id := range h.order {
		p := h.vehicles[id].peer
		if p == nil {
			continue
		}
		if err := p.Send(data); err != nil {
			failed = append(failed, p)
		}
	}
	for _, p := range failed {
		h.logger.Warn("Dropping peer", "vehicleId", h.byPeer[p])
		h.drop(p)
	}
}

func (h *Hub) snapshots() []streaming.VehicleSnapshot {
	out := make([]streaming.VehicleSnapshot, 0, len(h.order))
	for _, id := range h.order {
		e := h.vehicles[id]
		out = append(out, streaming.VehicleSnapshot{
			VehicleID: id,
			Name:      e.info.Name,
			State:     e.vehicle.AuthoritativeState(),
		})
	}
	return out
}

func (h *Hub) afterStep(res sim.StepResult) {
	h.tickNanos.Store(int64(res.Duration))
}

func (h *Hub) dispatch(cmd string, payload any, at time.Time) error {
	if h.cfg.Dispatcher == nil {
		return nil
	}
	_, err := h.cfg.Dispatcher.Dispatch(dispatcher.Event{Command: cmd, Payload: payload, Timestamp: at})
	return err
}
