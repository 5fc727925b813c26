// Package connreg is the Connection Registry (component C): the only
// component that touches live transports. It maps connections to
// (sessionId, participantId, role) and supports targeted send and
// room-scoped broadcast with back-pressure drop.
package connreg

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Role is the channel a connection belongs to.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleController  Role = "controller"
	RoleBigscreen   Role = "bigscreen"
)

const shardCount = 32

// Registry holds the set of live transports, sharded by room hash so a
// broadcast to one room never blocks operations on an unrelated one.
type Registry struct {
	shards [shardCount]*shard

	droppedSends atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // room -> clients
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{clients: make(map[string]map[*Client]struct{})}
	}
	return r
}

func (r *Registry) shardFor(room string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a client to its room (room == sessionId for the core's use).
func (r *Registry) Register(c *Client) {
	s := r.shardFor(c.Room)
	s.mu.Lock()
	if s.clients[c.Room] == nil {
		s.clients[c.Room] = make(map[*Client]struct{})
	}
	s.clients[c.Room][c] = struct{}{}
	s.mu.Unlock()

	log.Info().
		Str("room", c.Room).
		Str("participant_id", c.ParticipantID).
		Str("role", string(c.Role)).
		Msg("connection registered")
}

// Unregister removes a client and closes its send channel.
func (r *Registry) Unregister(c *Client) {
	s := r.shardFor(c.Room)
	s.mu.Lock()
	if room, ok := s.clients[c.Room]; ok {
		if _, exists := room[c]; exists {
			delete(room, c)
			close(c.Send)
			if len(room) == 0 {
				delete(s.clients, c.Room)
			}
		}
	}
	s.mu.Unlock()

	log.Info().
		Str("room", c.Room).
		Str("participant_id", c.ParticipantID).
		Msg("connection unregistered")
}

// SendTo enqueues a frame to a single connection, non-blocking. Returns
// false (and increments the drop counter) if the connection's outbound
// buffer is full.
func (r *Registry) SendTo(c *Client, event string, payload interface{}) bool {
	raw, err := encodeFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return false
	}

	select {
	case c.Send <- raw:
		return true
	default:
		r.droppedSends.Add(1)
		log.Warn().
			Str("participant_id", c.ParticipantID).
			Str("event", event).
			Msg("outbound buffer full, dropping send")
		return false
	}
}

// Broadcast fans out to every client in room, optionally filtered to a
// single role. Returns the number of clients the frame was (attempted to
// be) delivered to and the number dropped on a full buffer.
func (r *Registry) Broadcast(room string, event string, payload interface{}, filter *Role) (sent, dropped int) {
	raw, err := encodeFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode broadcast frame")
		return 0, 0
	}

	s := r.shardFor(room)
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients[room]))
	for c := range s.clients[room] {
		if filter != nil && c.Role != *filter {
			continue
		}
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.Send <- raw:
			sent++
		default:
			dropped++
			r.droppedSends.Add(1)
		}
	}
	return sent, dropped
}

// CountByRoom returns the number of live connections in a room.
func (r *Registry) CountByRoom(room string) int {
	s := r.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[room])
}

// DroppedSends returns the cumulative count of back-pressure drops, for
// component I's metrics.
func (r *Registry) DroppedSends() int64 {
	return r.droppedSends.Load()
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload,omitempty"`
	}{Type: event, Payload: payload})
}
