// Package streaming defines the binary wire protocol between an authority
// host and its clients. Every frame is one msgpack-encoded Envelope.
package streaming

import (
	"errors"
	"fmt"

	"github.com/kartsync/kartsync/pkg/core"
	"github.com/vmihailenco/msgpack/v5"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello      = "hello"
	TypeWelcome    = "welcome"
	TypeSubmitMove = "submit_move"
	TypeStateBatch = "state_batch"
	TypeDespawn    = "despawn"
)

// ErrUnknownType is returned when an envelope carries an unexpected type.
var ErrUnknownType = errors.New("unknown message type")

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload opens a client session.
type HelloPayload struct {
	Name string `msgpack:"name"`
}

// WelcomePayload answers hello with the session and the vehicle the
// client controls, plus a snapshot of every vehicle already spawned.
type WelcomePayload struct {
	SessionID     string             `msgpack:"sessionId"`
	VehicleID     string             `msgpack:"vehicleId"`
	TickHz        int                `msgpack:"tickHz"`
	ReplicationHz int                `msgpack:"replicationHz"`
	Params        core.VehicleParams `msgpack:"params"`
	Vehicles      []VehicleSnapshot  `msgpack:"vehicles"`
}

// SubmitMovePayload carries one captured move to the authority. The
// vehicle is implied by the connection.
type SubmitMovePayload struct {
	Move core.Move `msgpack:"move"`
}

// VehicleSnapshot is one vehicle's authoritative state.
type VehicleSnapshot struct {
	VehicleID string                  `msgpack:"vehicleId"`
	Name      string                  `msgpack:"name"`
	State     core.AuthoritativeState `msgpack:"state"`
}

// StateBatchPayload carries every vehicle that changed since the last batch.
type StateBatchPayload struct {
	Tick   uint64            `msgpack:"tick"`
	States []VehicleSnapshot `msgpack:"states"`
}

// DespawnPayload removes a vehicle.
type DespawnPayload struct {
	VehicleID string `msgpack:"vehicleId"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	data, err := msgpack.Marshal(&Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", msgType, err)
	}
	return data, nil
}

// DecodeEnvelope reads the outer frame. The payload stays raw.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decoding envelope: missing type")
	}
	return env, nil
}

// DecodePayload decodes an envelope's payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if err := msgpack.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return out, nil
}
