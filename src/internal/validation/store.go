package validation

import (
	"sync"
	"time"

	"expense-validation-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the in-memory registry of active pairing sessions. Sessions are
// keyed by session id; a reverse index maps connection ids back to session
// ids so disconnect events can find their session without scanning.
//
// Constructed once at process start and injected; never global. Both maps are
// owned exclusively by the Store. Reverse-index updates happen while holding
// the affected session's lock, so a reader never observes a connection id
// whose reverse entry is missing or stale.
type Store struct {
	sessions    sync.Map // sessionID -> *Session
	connections sync.Map // connectionID -> sessionID
	ttl         time.Duration
	now         func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl: ttl,
		now: time.Now,
	}
}

// Create registers a new session with the caller as the admin side.
func (st *Store) Create(sessionID, adminConnectionID string) (*Session, error) {
	session := newSession(sessionID, st.now(), st.ttl)

	if _, loaded := st.sessions.LoadOrStore(sessionID, session); loaded {
		return nil, models.ErrSessionExists
	}

	session.mu.Lock()
	if session.removed {
		// Removed between publication and binding; adding the reverse entry
		// now would leave it dangling forever.
		session.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	session.connections[RoleAdmin] = adminConnectionID
	st.connections.Store(adminConnectionID, sessionID)
	session.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": adminConnectionID,
	}).Debug("Session created")

	return session, nil
}

// Join binds the mobile side to an existing session. A second join replaces
// the previous mobile connection; the bumped connection gets no notification
// beyond whatever its transport reports.
func (st *Store) Join(sessionID, mobileConnectionID string) (*Session, error) {
	session, err := st.Get(sessionID)
	if err != nil {
		return nil, err
	}

	now := st.now()
	if session.Expired(now) {
		return nil, models.ErrSessionExpired
	}

	session.mu.Lock()
	if session.removed {
		session.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	if previous, ok := session.connections[RoleMobile]; ok && previous != mobileConnectionID {
		st.connections.Delete(previous)
	}
	session.connections[RoleMobile] = mobileConnectionID
	session.status = StatusConnected
	session.touch(now)
	st.connections.Store(mobileConnectionID, sessionID)
	session.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": mobileConnectionID,
	}).Debug("Mobile joined session")

	return session, nil
}

// TouchProcessing marks the session as processing one more image.
func (st *Store) TouchProcessing(sessionID string) (*Session, error) {
	session, err := st.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	session.status = StatusProcessing
	session.processedCount++
	session.touch(st.now())
	session.mu.Unlock()

	return session, nil
}

// RecordResult appends a verdict to the session history and marks the
// session ready for the next validation.
func (st *Store) RecordResult(sessionID string, item HistoryItem) (*Session, error) {
	session, err := st.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	session.history = append(session.history, item)
	session.status = StatusReady
	session.touch(st.now())
	session.mu.Unlock()

	return session, nil
}

// Get returns the session for the given id. Expiry is not checked here;
// expired entries remain visible until swept, matching join-time lazy expiry.
func (st *Store) Get(sessionID string) (*Session, error) {
	value, ok := st.sessions.Load(sessionID)
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return value.(*Session), nil
}

// LookupByConnection resolves a connection id to its session id.
func (st *Store) LookupByConnection(connectionID string) (string, bool) {
	value, ok := st.connections.Load(connectionID)
	if !ok {
		return "", false
	}
	return value.(string), true
}

// Remove deletes a session together with both of its reverse-index entries.
// Returns the removed session, or nil if the id was not tracked.
func (st *Store) Remove(sessionID string) *Session {
	value, ok := st.sessions.LoadAndDelete(sessionID)
	if !ok {
		return nil
	}
	session := value.(*Session)

	session.mu.Lock()
	session.removed = true
	for _, connectionID := range session.connections {
		st.connections.Delete(connectionID)
	}
	session.mu.Unlock()

	logrus.WithField("session_id", sessionID).Debug("Session removed")
	return session
}

// SweepExpired removes every session whose expiry lies before now and returns
// how many were removed. Idempotent and safe to run concurrently with any
// other store operation.
func (st *Store) SweepExpired(now time.Time) int {
	removed := 0
	st.sessions.Range(func(key, value interface{}) bool {
		session := value.(*Session)
		if session.Expired(now) {
			if st.Remove(session.SessionID) != nil {
				removed++
			}
		}
		return true
	})

	if removed > 0 {
		logrus.WithField("count", removed).Info("Expired sessions swept")
	}
	return removed
}

// Snapshot returns a point-in-time view of every tracked session.
func (st *Store) Snapshot() []*Info {
	infos := make([]*Info, 0)
	st.sessions.Range(func(key, value interface{}) bool {
		infos = append(infos, value.(*Session).Snapshot())
		return true
	})
	return infos
}
