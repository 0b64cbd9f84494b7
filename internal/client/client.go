// Package client is a participant that predicts its own vehicle and
// replays everyone else's from replicated authoritative states.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartsync/kartsync/internal/channel"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/influx"
	"github.com/kartsync/kartsync/internal/kart"
	"github.com/kartsync/kartsync/internal/sim"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/kartsync/kartsync/pkg/streaming"
)

// Driver supplies controls for the local vehicle.
type Driver interface {
	Next(dt float64) (throttle, steering float64)
}

// Config holds everything a client needs.
type Config struct {
	URL    string
	Name   string
	Sim    config.SimConfig
	World  collision.World
	Driver Driver
	Logger *slog.Logger
	Influx *influx.Manager // optional
	Clock  sim.Clock

	ReconnectBackoff time.Duration
	MaxReconnects    int
}

// Stats counts what the client has done. Safe to call from any goroutine.
type Stats struct {
	Welcomed       bool
	Lost           bool // reconnecting gave up
	VehicleID      string
	StatesApplied  int64
	StaleStates    int64
	MovesSent      int64
	Proxies        int
	LastCorrection float64
	MaxCorrection  float64
}

// Client owns a local predicting vehicle plus a replaying proxy for every
// other vehicle. Vehicle state belongs to the loop goroutine; the network
// read loop only posts to it.
type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   *connection
	loop   *sim.Loop
	states *channel.Mailbox[string, core.AuthoritativeState]

	ready       atomic.Bool // a welcome has been applied on the current socket
	welcomed    chan struct{}
	welcomeOnce sync.Once

	// loop-owned
	sessionID string
	vehicleID string
	local     *kart.Vehicle
	proxies   map[string]*kart.Vehicle
	despawned map[string]struct{}

	applied        atomic.Int64
	stale          atomic.Int64
	sent           atomic.Int64
	proxyCount     atomic.Int64
	lastCorrection atomic.Uint64
	maxCorrection  atomic.Uint64
	id             atomic.Value
}

// New builds a client. Connect opens the socket, Run drives the loop.
func New(cfg Config) (*Client, error) {
	if cfg.Driver == nil {
		return nil, errors.New("creating client: no driver")
	}
	if cfg.Sim.TickHz <= 0 {
		cfg.Sim.TickHz = 60
	}
	if cfg.World == nil {
		cfg.World = collision.Open{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "client", "name", cfg.Name),
		states:    channel.NewMailbox[string, core.AuthoritativeState](),
		welcomed:  make(chan struct{}),
		proxies:   make(map[string]*kart.Vehicle),
		despawned: make(map[string]struct{}),
	}
	c.id.Store("")
	c.loop = sim.NewLoop(sim.StepperFunc(c.step), sim.Config{
		TickHz:          cfg.Sim.TickHz,
		CatchupMaxTicks: cfg.Sim.CatchupMaxTicks,
	}, sim.Hooks{}, cfg.Clock)

	c.conn = newConnection(c.logger, c.HandleMessage)
	if cfg.ReconnectBackoff > 0 {
		c.conn.backoff = cfg.ReconnectBackoff
	}
	if cfg.MaxReconnects > 0 {
		c.conn.maxAttempts = cfg.MaxReconnects
	}
	c.conn.onReconnect = func() { c.ready.Store(false) }
	return c, nil
}

// Connect dials the server and sends hello.
func (c *Client) Connect() error {
	hello, err := streaming.Encode(streaming.TypeHello, streaming.HelloPayload{Name: c.cfg.Name})
	if err != nil {
		return err
	}
	if err := c.conn.dial(c.cfg.URL, hello); err != nil {
		return fmt.Errorf("connecting to %s: %w", c.cfg.URL, err)
	}
	c.logger.Info("Connected", "url", c.cfg.URL)
	return nil
}

// Run ticks the client until ctx is done or reconnecting gives up, then
// closes the connection. Giving up returns ErrReconnectFailed.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.conn.lost:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.loop.Run(ctx)
	if err := c.Close(); err != nil {
		c.logger.Debug("Error closing connection", "error", err)
	}
	if c.lost() {
		return ErrReconnectFailed
	}
	return nil
}

func (c *Client) lost() bool {
	select {
	case <-c.conn.lost:
		return true
	default:
		return false
	}
}

// Tick runs posted work and one simulation step.
func (c *Client) Tick(tc sim.TickContext) sim.StepResult {
	return c.loop.Advance(tc)
}

// Close disconnects from the server.
func (c *Client) Close() error {
	return c.conn.close()
}

// Welcomed is closed once the first welcome has been applied.
func (c *Client) Welcomed() <-chan struct{} {
	return c.welcomed
}

// Stats returns the client counters.
func (c *Client) Stats() Stats {
	select {
	case <-c.welcomed:
	default:
		return Stats{Lost: c.lost()}
	}
	return Stats{
		Welcomed:       true,
		Lost:           c.lost(),
		VehicleID:      c.id.Load().(string),
		StatesApplied:  c.applied.Load(),
		StaleStates:    c.stale.Load(),
		MovesSent:      c.sent.Load(),
		Proxies:        int(c.proxyCount.Load()),
		LastCorrection: math.Float64frombits(c.lastCorrection.Load()),
		MaxCorrection:  math.Float64frombits(c.maxCorrection.Load()),
	}
}

// SendMove forwards a predicted move to the authority. Moves captured
// before the current socket's welcome are dropped.
func (c *Client) SendMove(m core.Move) {
	if !c.ready.Load() {
		return
	}
	data, err := streaming.Encode(streaming.TypeSubmitMove, streaming.SubmitMovePayload{Move: m})
	if err != nil {
		c.logger.Error("Error encoding move", "error", err)
		return
	}
	c.conn.send(data)
	c.sent.Add(1)
}

// HandleMessage routes one frame from the server. It runs on the network
// goroutine: welcomes and despawns are posted to the loop, states go to
// the last-value-wins mailbox.
func (c *Client) HandleMessage(data []byte) {
	env, err := streaming.DecodeEnvelope(data)
	if err != nil {
		c.logger.Debug("Discarding malformed message", "error", err)
		return
	}

	switch env.Type {
	case streaming.TypeWelcome:
		w, err := streaming.DecodePayload[streaming.WelcomePayload](env)
		if err != nil {
			c.logger.Debug("Discarding welcome", "error", err)
			return
		}
		c.loop.Post(func() { c.welcome(w) })
	case streaming.TypeStateBatch:
		batch, err := streaming.DecodePayload[streaming.StateBatchPayload](env)
		if err != nil {
			c.logger.Debug("Discarding state batch", "error", err)
			return
		}
		for _, s := range batch.States {
			c.states.Put(s.VehicleID, s.State)
		}
	case streaming.TypeDespawn:
		d, err := streaming.DecodePayload[streaming.DespawnPayload](env)
		if err != nil {
			c.logger.Debug("Discarding despawn", "error", err)
			return
		}
		c.loop.Post(func() { c.despawn(d.VehicleID) })
	default:
		c.logger.Debug("Ignoring message", "type", env.Type)
	}
}

func (c *Client) welcome(w streaming.WelcomePayload) {
	if c.vehicleID != "" && c.vehicleID != w.VehicleID {
		c.despawned[c.vehicleID] = struct{}{}
	}
	for id := range c.proxies {
		delete(c.proxies, id)
	}
	c.local = nil

	for _, snap := range w.Vehicles {
		if snap.VehicleID == w.VehicleID {
			local, err := kart.New(kart.Config{
				ID:                  w.VehicleID,
				Params:              w.Params,
				World:               c.cfg.World,
				Spawn:               snap.State.Pose,
				IsLocallyControlled: true,
				Sender:              c,
			})
			if err != nil {
				c.logger.Error("Error creating local vehicle", "error", err)
				return
			}
			c.local = local
			continue
		}
		if _, err := c.addProxy(snap.VehicleID, w.Params, snap.State); err != nil {
			c.logger.Error("Error creating proxy", "vehicleId", snap.VehicleID, "error", err)
		}
	}
	if c.local == nil {
		c.logger.Error("Welcome did not include our vehicle", "vehicleId", w.VehicleID)
		return
	}

	c.sessionID = w.SessionID
	c.vehicleID = w.VehicleID
	c.id.Store(w.VehicleID)
	c.proxyCount.Store(int64(len(c.proxies)))
	c.ready.Store(true)
	c.welcomeOnce.Do(func() { close(c.welcomed) })
	c.logger.Info("Welcomed", "sessionId", w.SessionID, "vehicleId", w.VehicleID, "vehicles", len(w.Vehicles))
}

func (c *Client) addProxy(id string, params core.VehicleParams, s core.AuthoritativeState) (*kart.Vehicle, error) {
	p, err := kart.New(kart.Config{
		ID:     id,
		Params: params,
		World:  c.cfg.World,
		Spawn:  s.Pose,
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.ApplyAuthoritativeState(s); err != nil {
		return nil, err
	}
	c.proxies[id] = p
	c.proxyCount.Store(int64(len(c.proxies)))
	return p, nil
}

func (c *Client) despawn(id string) {
	c.despawned[id] = struct{}{}
	delete(c.proxies, id)
	c.proxyCount.Store(int64(len(c.proxies)))
}

func (c *Client) step(tc sim.TickContext) {
	if c.local == nil {
		c.states.Drain(func(string, core.AuthoritativeState) {})
		return
	}

	c.states.Drain(c.applyState)

	throttle, steering := c.cfg.Driver.Next(tc.Delta)
	c.local.SetInput(throttle, steering)
	if err := c.local.Advance(tc.Delta); err != nil {
		c.logger.Debug("Local tick failed", "error", err)
	}
	for _, p := range c.proxies {
		if err := p.Advance(tc.Delta); err != nil {
			c.logger.Debug("Proxy tick failed", "vehicleId", p.ID(), "error", err)
		}
	}
}

func (c *Client) applyState(id string, s core.AuthoritativeState) {
	if _, gone := c.despawned[id]; gone {
		return
	}

	if id == c.vehicleID {
		corr, err := c.local.ApplyAuthoritativeState(s)
		if errors.Is(err, kart.ErrStaleState) {
			c.stale.Add(1)
			return
		}
		if err != nil {
			c.logger.Debug("Reconcile failed", "error", err)
			return
		}
		c.recordCorrection(corr)
		return
	}

	p, ok := c.proxies[id]
	if !ok {
		if _, err := c.addProxy(id, c.local.Params(), s); err != nil {
			c.logger.Error("Error creating proxy", "vehicleId", id, "error", err)
		}
		return
	}
	if _, err := p.ApplyAuthoritativeState(s); err != nil && !errors.Is(err, kart.ErrStaleState) {
		c.logger.Debug("Proxy reconcile failed", "vehicleId", id, "error", err)
	}
}

func (c *Client) recordCorrection(corr kart.Correction) {
	c.applied.Add(1)
	c.lastCorrection.Store(math.Float64bits(corr.Error))
	if corr.Error > math.Float64frombits(c.maxCorrection.Load()) {
		c.maxCorrection.Store(math.Float64bits(corr.Error))
	}
	c.logger.Debug("Reconciled", "correction", corr.Error, "pruned", corr.Pruned, "replayed", corr.Replayed)

	if c.cfg.Influx == nil {
		return
	}
	point := influx.ReconciliationPoint(c.sessionID, c.vehicleID, c.local.Role().String(), corr.Error, corr.Replayed, time.Now())
	if err := c.cfg.Influx.WritePoint(context.Background(), influx.BucketReconciliation, point); err != nil {
		c.logger.Debug("Error writing reconciliation point", "error", err)
	}
}
