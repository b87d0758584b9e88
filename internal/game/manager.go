package game

import (
	"log"
	"sort"
	"sync"

	"blastline/internal/protocol"
)

// Manager owns the set of live rooms. Rooms are created on demand when
// the first client joins and disposed when the last one leaves.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	metrics Metrics
	events  *EventLog
}

// NewManager creates a room manager sharing one metrics sink and one
// event log across all rooms.
func NewManager(metrics Metrics, events *EventLog) *Manager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Manager{
		rooms:   make(map[string]*Room),
		metrics: metrics,
		events:  events,
	}
}

// GetOrCreate returns the room with the given id, creating and starting
// it if needed. The sender is only used at creation time; an existing
// room keeps its original sender.
func (m *Manager) GetOrCreate(roomID string, sender Sender) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[roomID]; ok {
		return room
	}

	room := NewRoom(roomID, RoomConfig{
		Sender:  sender,
		Metrics: m.metrics,
		Events:  m.events,
	})
	m.rooms[roomID] = room
	room.Start()

	log.Printf("🏠 created room %s (%d total)", roomID, len(m.rooms))
	return room
}

// Get returns an existing room.
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

// Dispose stops and removes a room. Callers decide when; the API layer
// disposes a room once its last websocket disconnects.
func (m *Manager) Dispose(roomID string) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if ok {
		delete(m.rooms, roomID)
	}
	count := len(m.rooms)
	m.mu.Unlock()

	if !ok {
		return
	}
	room.Stop()
	log.Printf("🗑️ disposed room %s (%d remaining)", roomID, count)
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Metadata lists every room's lobby summary, sorted by id.
func (m *Manager) Metadata() []protocol.RoomMetadata {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	metas := make([]protocol.RoomMetadata, 0, len(rooms))
	for _, room := range rooms {
		metas = append(metas, room.Metadata())
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].RoomID < metas[j].RoomID })
	return metas
}

// Shutdown stops every room. The event log is owned by main and stopped
// there.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
	log.Printf("🛑 room manager: all rooms stopped")
}
