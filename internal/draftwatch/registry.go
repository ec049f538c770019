package draftwatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnHandle is the live connection a session rides on. The reaper uses it
// to force-close connections of stale sessions.
type ConnHandle interface {
	Terminate()
}

// session is the registry's internal record of one authoring attempt
type session struct {
	id        string
	ownerID   string
	submitted bool
	createdAt time.Time
	conn      ConnHandle
	files     map[string]struct{}
}

// SessionSnapshot is an immutable copy of a session's state, handed out by
// Remove and Entries so callers never touch shared mutable state.
type SessionSnapshot struct {
	SessionID string
	OwnerID   string
	Submitted bool
	CreatedAt time.Time
	Conn      ConnHandle
	Files     []string
}

// Registry is the in-memory session table. It is a pure state container:
// no I/O, every operation O(1) map work under one mutex. Constructed per
// handler so tests can run isolated instances.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Create registers a new session and returns its generated id. The server
// always issues a fresh id; a reconnecting client folds its previous
// session in via Take before calling Create.
func (r *Registry) Create(ownerID string, initialFiles []string, conn ConnHandle) string {
	files := make(map[string]struct{}, len(initialFiles))
	for _, id := range initialFiles {
		if id != "" {
			files[id] = struct{}{}
		}
	}

	s := &session{
		id:        uuid.New().String(),
		ownerID:   ownerID,
		createdAt: r.now(),
		conn:      conn,
		files:     files,
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	return s.id
}

// Get returns a snapshot of one session
func (r *Registry) Get(sessionID string) (SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return SessionSnapshot{}, false
	}
	return snapshotOf(s), true
}

// AddFile tracks a file on the session. Returns false when the session is
// unknown or the file was already tracked (idempotent).
func (r *Registry) AddFile(sessionID, fileID string) bool {
	if fileID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, dup := s.files[fileID]; dup {
		return false
	}
	s.files[fileID] = struct{}{}
	return true
}

// RemoveFile stops tracking a file. Returns false when the session is
// unknown or the file was not tracked.
func (r *Registry) RemoveFile(sessionID, fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, tracked := s.files[fileID]; !tracked {
		return false
	}
	delete(s.files, fileID)
	return true
}

// MarkSubmitted flags the session as finalized. Monotonic: there is no way
// to clear the flag for the life of the session.
func (r *Registry) MarkSubmitted(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.submitted = true
	return true
}

// Remove deletes the session and returns its final state. At most one
// caller observes ok==true for a given session, which is what makes the
// disconnect-cleanup / resume / reaper race safe: whoever removes the
// entry first owns the cleanup decision, everyone else sees absence.
func (r *Registry) Remove(sessionID string) (SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return SessionSnapshot{}, false
	}
	delete(r.sessions, sessionID)
	return snapshotOf(s), true
}

// Take detaches a prior session's file set for a resuming client. The old
// entry is removed, so its original connection's disconnect path will find
// nothing to clean up. Owner must match; a mismatch returns nothing.
func (r *Registry) Take(sessionID, ownerID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.ownerID != ownerID {
		return nil, false
	}
	delete(r.sessions, sessionID)

	files := make([]string, 0, len(s.files))
	for id := range s.files {
		files = append(files, id)
	}
	return files, true
}

// Entries returns a snapshot of every registered session, for the reaper
func (r *Registry) Entries() []SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		entries = append(entries, snapshotOf(s))
	}
	return entries
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func snapshotOf(s *session) SessionSnapshot {
	files := make([]string, 0, len(s.files))
	for id := range s.files {
		files = append(files, id)
	}
	return SessionSnapshot{
		SessionID: s.id,
		OwnerID:   s.ownerID,
		Submitted: s.submitted,
		CreatedAt: s.createdAt,
		Conn:      s.conn,
		Files:     files,
	}
}
