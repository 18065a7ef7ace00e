package session

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CommandDisconnect is pushed to a connection replaced by a forced login.
const CommandDisconnect = "DISCONNECT"

// ErrAlreadyLoggedIn is returned when a subscriber already holds a live
// session and the caller did not ask to replace it.
var ErrAlreadyLoggedIn = errors.New("user already logged in")

// Conn is the part of a client connection the registry needs.
type Conn interface {
	Notify(command, description string) error
	Close() error
	RemoteAddr() string
}

// Entry is one line of the connection log.
type Entry struct {
	At           time.Time `json:"at"`
	SubscriberID int64     `json:"subscriber_id"`
	RemoteAddr   string    `json:"remote_addr"`
	Status       string    `json:"status"`
}

// Live describes a registered session.
type Live struct {
	SubscriberID int64     `json:"subscriber_id"`
	RemoteAddr   string    `json:"remote_addr"`
	Since        time.Time `json:"since"`
}

type session struct {
	conn  Conn
	since time.Time
}

// Registry maps a subscriber id to at most one live connection.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]session
	log      []Entry
	logSize  int
	now      func() time.Time
}

// NewRegistry creates a registry whose connection log keeps at most logSize entries.
func NewRegistry(logSize int) *Registry {
	if logSize <= 0 {
		logSize = 500
	}
	return &Registry{
		sessions: make(map[int64]session),
		logSize:  logSize,
		now:      time.Now,
	}
}

// Register binds conn to subscriberID. If another connection already holds
// the id, Register fails with ErrAlreadyLoggedIn unless force is set, in which
// case the old connection is told it was replaced and closed.
func (r *Registry) Register(subscriberID int64, conn Conn, force bool) error {
	r.mu.Lock()
	prev, exists := r.sessions[subscriberID]
	if exists && prev.conn != conn && !force {
		r.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	r.sessions[subscriberID] = session{conn: conn, since: r.now()}
	if exists && prev.conn != conn {
		r.record(subscriberID, prev.conn, "terminated")
	}
	r.record(subscriberID, conn, "connected")
	r.mu.Unlock()

	if exists && prev.conn != conn {
		if err := prev.conn.Notify(CommandDisconnect, "New session was started."); err != nil {
			log.WithError(err).WithField("subscriber", subscriberID).Debug("Failed to notify replaced session")
		}
		_ = prev.conn.Close()
		log.WithFields(log.Fields{"subscriber": subscriberID, "remote": prev.conn.RemoteAddr()}).Info("Session terminated by a new login")
	}
	return nil
}

// Unregister removes the mapping if it still points at conn. A connection
// that was already replaced by a forced login is ignored.
func (r *Registry) Unregister(subscriberID int64, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[subscriberID]
	if !ok || cur.conn != conn {
		return false
	}
	delete(r.sessions, subscriberID)
	r.record(subscriberID, conn, "disconnected")
	log.WithFields(log.Fields{"subscriber": subscriberID, "remote": conn.RemoteAddr()}).Info("Session disconnected")
	return true
}

// Lookup returns the connection registered for subscriberID.
func (r *Registry) Lookup(subscriberID int64) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[subscriberID]
	return s.conn, ok
}

// Live lists every registered session.
func (r *Registry) Live() []Live {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Live, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, Live{SubscriberID: id, RemoteAddr: s.conn.RemoteAddr(), Since: s.since})
	}
	return out
}

// Log returns a copy of the connection log, oldest first.
func (r *Registry) Log() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.log))
	copy(out, r.log)
	return out
}

// Terminate empties the registry and logs every session as terminated.
// Connections are left to their owner, which pushes and closes them.
func (r *Registry) Terminate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	for id, s := range r.sessions {
		r.record(id, s.conn, "terminated")
	}
	r.sessions = make(map[int64]session)
	return n
}

// record appends to the bounded log. Callers hold r.mu.
func (r *Registry) record(subscriberID int64, conn Conn, status string) {
	r.log = append(r.log, Entry{
		At:           r.now(),
		SubscriberID: subscriberID,
		RemoteAddr:   conn.RemoteAddr(),
		Status:       status,
	})
	if over := len(r.log) - r.logSize; over > 0 {
		r.log = append(r.log[:0], r.log[over:]...)
	}
}
