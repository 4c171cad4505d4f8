package relay

import (
	"strconv"
	"sync"
)

// Role identifies which side of a ride a participant is on.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

// Named events emitted over live sessions.
const (
	EventRideRequest   = "ride:request"
	EventRideUpdate    = "ride:update"
	EventRideCancelled = "ride:cancelled"
)

// RiderKey and DriverKey scope participant ids per role so a rider and a
// driver sharing a numeric id never collide in the session map.
func RiderKey(id int64) string  { return "rider:" + strconv.FormatInt(id, 10) }
func DriverKey(id int64) string { return "driver:" + strconv.FormatInt(id, 10) }

// Conn is the transport surface a session needs. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Envelope is the wire frame for a named event.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Session wraps a live connection with a write lock so concurrent sends
// do not interleave frames.
type Session struct {
	conn Conn
	mu   sync.Mutex
}

func (s *Session) Send(event string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(Envelope{Event: event, Data: data})
}

// Router maps a participant key to its single active session. State is
// process-local; sharing sessions across instances needs an external
// directory, which this router deliberately does not provide.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRouter() *Router { return &Router{sessions: make(map[string]*Session)} }

// Join registers conn under key, overwriting any prior session.
// Reconnect is latest-wins; there is no multi-device fan-out.
func (r *Router) Join(key string, conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Session{conn: conn}
	r.sessions[key] = s
	return s
}

// Leave removes the mapping on disconnect. It does not touch orders: a
// participant dropping mid-ride neither pauses nor cancels anything.
func (r *Router) Leave(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Lookup returns the active session for key, if any.
func (r *Router) Lookup(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Drop removes the mapping only if it still points at s, so a session
// that reconnected in the meantime is left alone.
func (r *Router) Drop(key string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
	}
}
