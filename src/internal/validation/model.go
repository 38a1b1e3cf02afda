package validation

import (
	"sync"
	"time"
)

// Role identifies which side of a pairing session a connection belongs to.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMobile Role = "mobile"
)

// Session status constants
const (
	StatusCreated    = "Created"
	StatusConnected  = "Connected"
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusReady      = "Ready"
)

// Session represents one active admin-mobile pairing. All mutable fields are
// guarded by mu; mutations go through the Store so the reverse connection
// index never gets out of sync with the bound connection ids.
type Session struct {
	SessionID string

	mu             sync.Mutex
	connections    map[Role]string
	removed        bool
	status         string
	createdAt      time.Time
	expiresAt      time.Time
	lastActivity   time.Time
	processedCount int
	history        []HistoryItem
}

func newSession(sessionID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		SessionID:    sessionID,
		connections:  make(map[Role]string),
		status:       StatusCreated,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastActivity: now,
	}
}

// touch refreshes lastActivity, keeping it non-decreasing. Caller holds mu.
func (s *Session) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionID returns the connection bound to the given role, if any.
func (s *Session) ConnectionID(role Role) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.connections[role]
	return id, ok
}

// RoleOf reports which side of the session a connection id belongs to.
func (s *Session) RoleOf(connectionID string) (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for role, id := range s.connections {
		if id == connectionID {
			return role, true
		}
	}
	return "", false
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processedCount
}

func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}

// History returns a copy of the accumulated verdicts.
func (s *Session) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]HistoryItem, len(s.history))
	copy(items, s.history)
	return items
}

// Info captures a point-in-time view of a session for the admin endpoints.
type Info struct {
	SessionID       string    `json:"sessionId"`
	Status          string    `json:"status"`
	AdminConnected  bool      `json:"adminConnected"`
	MobileConnected bool      `json:"mobileConnected"`
	ProcessedCount  int       `json:"processedCount"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	LastActivity    time.Time `json:"lastActivity"`
}

func (s *Session) Snapshot() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, admin := s.connections[RoleAdmin]
	_, mobile := s.connections[RoleMobile]
	return &Info{
		SessionID:       s.SessionID,
		Status:          s.status,
		AdminConnected:  admin,
		MobileConnected: mobile,
		ProcessedCount:  s.processedCount,
		CreatedAt:       s.createdAt,
		ExpiresAt:       s.expiresAt,
		LastActivity:    s.lastActivity,
	}
}

// Verdict is the full analysis result fanned out to the admin side and
// returned synchronously from POST /analyze.
type Verdict struct {
	ValidationID         string    `json:"validationId"`
	ProductName          string    `json:"productName"`
	Category             string    `json:"category"`
	IsDeductible         bool      `json:"isDeductible"`
	Confidence           float64   `json:"confidence"`
	Reason               string    `json:"reason"`
	Timestamp            time.Time `json:"timestamp"`
	AnalysisMethod       string    `json:"analysisMethod"`
	ThumbnailBase64      string    `json:"thumbnailBase64,omitempty"`
	RequiresManualReview bool      `json:"requiresManualReview"`
	AdditionalNotes      string    `json:"additionalNotes,omitempty"`
}

// HistoryItem is the per-session record kept for each verdict.
type HistoryItem struct {
	ValidationID    string    `json:"validationId"`
	ProductName     string    `json:"productName"`
	IsDeductible    bool      `json:"isDeductible"`
	Category        string    `json:"category"`
	Timestamp       time.Time `json:"timestamp"`
	ThumbnailBase64 string    `json:"thumbnailBase64"`
}

func (v *Verdict) historyItem() HistoryItem {
	return HistoryItem{
		ValidationID:    v.ValidationID,
		ProductName:     v.ProductName,
		IsDeductible:    v.IsDeductible,
		Category:        v.Category,
		Timestamp:       v.Timestamp,
		ThumbnailBase64: v.ThumbnailBase64,
	}
}
