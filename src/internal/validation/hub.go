package validation

import (
	"errors"
	"time"

	"expense-validation-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Pusher delivers a named event to a single connection. Implemented by the
// websocket transport; tests plug in a recorder.
type Pusher interface {
	Push(connectionID, event string, payload interface{}) error
}

// Hub drives the pairing protocol between the admin and mobile sides of a
// session. Every operation answers the calling connection only; failures on
// one session never affect another.
type Hub struct {
	store  *Store
	pusher Pusher
}

func NewHub(store *Store, pusher Pusher) *Hub {
	return &Hub{
		store:  store,
		pusher: pusher,
	}
}

// CreateSession registers the caller as the admin side of a new session.
func (h *Hub) CreateSession(connectionID, sessionID string) {
	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": connectionID,
	}).Info("Creating session")

	_, err := h.store.Create(sessionID, connectionID)
	if err != nil {
		logrus.WithField("session_id", sessionID).Warn("Session already exists")
		h.pushError(connectionID, CodeSessionExists, "Session already exists")
		return
	}

	h.push(connectionID, EventSessionCreated, SessionCreatedEvent{
		SessionID: sessionID,
		Status:    StatusCreated,
		Message:   "Session created successfully. Waiting for mobile connection...",
	})
}

// JoinSession binds the caller as the mobile side of an existing session and
// notifies the admin side if it is still connected.
func (h *Hub) JoinSession(connectionID, sessionID string) {
	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": connectionID,
	}).Info("Mobile joining session")

	session, err := h.store.Join(sessionID, connectionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionExpired):
			logrus.WithField("session_id", sessionID).Warn("Session has expired")
			h.pushError(connectionID, CodeSessionExpired, "The session has expired. Please scan a new QR code.")
		default:
			logrus.WithField("session_id", sessionID).Warn("Session not found")
			h.pushError(connectionID, CodeSessionNotFound, "Session not found. Check the QR code.")
		}
		return
	}

	h.push(connectionID, EventJoinedSession, JoinedSessionEvent{
		SessionID: sessionID,
		Status:    StatusConnected,
		Message:   "Connected successfully. You can start taking photos.",
	})

	// The admin connection may already be gone; the session record survives
	// until explicit close or sweep, so join still succeeds.
	if adminID, ok := session.ConnectionID(RoleAdmin); ok {
		h.push(adminID, EventMobileConnected, MobileConnectedEvent{
			SessionID:   sessionID,
			ConnectedAt: time.Now().UTC(),
			Message:     "Mobile phone connected ✓",
		})
	}
}

// SendImage forwards a captured image to the admin side and acknowledges the
// sender with a truncated preview, never the full payload.
func (h *Hub) SendImage(connectionID, sessionID, imageBase64, description string) {
	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": connectionID,
	}).Info("Image received over pairing channel")

	session, err := h.store.TouchProcessing(sessionID)
	if err != nil {
		h.pushError(connectionID, CodeSessionNotFound, "Session not found")
		return
	}

	if adminID, ok := session.ConnectionID(RoleAdmin); ok {
		h.push(adminID, EventImageReceived, ImageReceivedEvent{
			SessionID:   sessionID,
			ImageBase64: imageBase64,
			Description: description,
			ReceivedAt:  time.Now().UTC(),
			Message:     "Image received, analyzing...",
		})
	}

	h.push(connectionID, EventImageSent, ImageSentEvent{
		SessionID:    sessionID,
		Status:       StatusProcessing,
		Message:      "Processing image...",
		ImagePreview: truncatePreview(imageBase64),
	})
}

// NotifyProcessing tells both parties that analysis has started for the
// session's current image.
func (h *Hub) NotifyProcessing(sessionID string) {
	session, err := h.store.Get(sessionID)
	if err != nil {
		return
	}

	event := ProcessingStartedEvent{
		SessionID: sessionID,
		Message:   "Analyzing product...",
		Timestamp: time.Now().UTC(),
	}
	for _, role := range []Role{RoleAdmin, RoleMobile} {
		if connID, ok := session.ConnectionID(role); ok {
			h.push(connID, EventProcessingStarted, event)
		}
	}
}

// SendResult fans a completed verdict out to both sides: the full object to
// the admin, a reduced projection to the mobile. Called by the analysis
// pipeline, not by clients.
func (h *Hub) SendResult(sessionID string, verdict *Verdict) error {
	logrus.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"product_name": verdict.ProductName,
	}).Info("Sending validation result")

	session, err := h.store.RecordResult(sessionID, verdict.historyItem())
	if err != nil {
		logrus.WithField("session_id", sessionID).Warn("Session not found when sending result")
		return err
	}

	if adminID, ok := session.ConnectionID(RoleAdmin); ok {
		h.push(adminID, EventValidationResult, verdict)
	}

	if mobileID, ok := session.ConnectionID(RoleMobile); ok {
		h.push(mobileID, EventValidationResult, MobileVerdictEvent{
			ValidationID: verdict.ValidationID,
			ProductName:  verdict.ProductName,
			IsDeductible: verdict.IsDeductible,
			Category:     verdict.Category,
			Reason:       verdict.Reason,
			Confidence:   verdict.Confidence,
			Message:      mobileVerdictMessage(verdict.IsDeductible),
		})
	}

	return nil
}

// GetSessionStatus answers the caller with the session's current state.
func (h *Hub) GetSessionStatus(connectionID, sessionID string) {
	session, err := h.store.Get(sessionID)
	if err != nil {
		h.pushError(connectionID, CodeSessionNotFound, "Session not found")
		return
	}

	deviceType := "Mobile"
	if adminID, ok := session.ConnectionID(RoleAdmin); ok && adminID == connectionID {
		deviceType = "Admin"
	}

	_, mobileConnected := session.ConnectionID(RoleMobile)
	status := session.Status()

	h.push(connectionID, EventSessionStatus, SessionStatusEvent{
		SessionID:      sessionID,
		IsConnected:    mobileConnected,
		DeviceType:     deviceType,
		LastActivity:   session.LastActivity(),
		ProcessedCount: session.ProcessedCount(),
		CurrentStatus:  status,
		StatusMessage:  statusMessage(status),
	})
}

// GetSessionHistory answers the caller with the session's accumulated
// verdicts. Unbounded, acceptable for short-lived sessions.
func (h *Hub) GetSessionHistory(connectionID, sessionID string) {
	session, err := h.store.Get(sessionID)
	if err != nil {
		h.pushError(connectionID, CodeSessionNotFound, "Session not found")
		return
	}

	h.push(connectionID, EventSessionHistory, session.History())
}

// CloseSession removes the session and notifies both parties. Closing an
// unknown or already-closed session is a no-op.
func (h *Hub) CloseSession(sessionID string) {
	logrus.WithField("session_id", sessionID).Info("Closing session")

	session := h.store.Remove(sessionID)
	if session == nil {
		return
	}

	event := SessionClosedEvent{
		SessionID: sessionID,
		Message:   "Session closed",
	}
	for _, role := range []Role{RoleAdmin, RoleMobile} {
		if connID, ok := session.ConnectionID(role); ok {
			h.push(connID, EventSessionClosed, event)
		}
	}
}

// OnDisconnect notifies the surviving side when a connection drops. The
// session record itself is kept so the same session id can be rejoined; only
// explicit close or the sweep removes it.
func (h *Hub) OnDisconnect(connectionID string) {
	sessionID, ok := h.store.LookupByConnection(connectionID)
	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"connection_id": connectionID,
	}).Info("Connection disconnected from session")

	session, err := h.store.Get(sessionID)
	if err != nil {
		return
	}

	role, ok := session.RoleOf(connectionID)
	if !ok {
		return
	}

	switch role {
	case RoleAdmin:
		if mobileID, ok := session.ConnectionID(RoleMobile); ok {
			h.push(mobileID, EventAdminDisconnected, PeerDisconnectedEvent{
				SessionID: sessionID,
				Message:   "The administrator has disconnected",
			})
		}
	case RoleMobile:
		if adminID, ok := session.ConnectionID(RoleAdmin); ok {
			h.push(adminID, EventMobileDisconnected, PeerDisconnectedEvent{
				SessionID: sessionID,
				Message:   "The mobile device has disconnected",
			})
		}
	}
}

// PushError reports a protocol failure to a single connection.
func (h *Hub) PushError(connectionID, code, message string) {
	h.pushError(connectionID, code, message)
}

// push delivers best-effort: a dead connection between lookup and send is
// expected, so failures are logged and never retried.
func (h *Hub) push(connectionID, event string, payload interface{}) {
	if connectionID == "" {
		return
	}
	if err := h.pusher.Push(connectionID, event, payload); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"connection_id": connectionID,
			"event":         event,
		}).Warn("Failed to push event")
	}
}

func (h *Hub) pushError(connectionID, code, message string) {
	h.push(connectionID, EventError, ErrorEvent{
		Code:    code,
		Message: message,
	})
}

// truncatePreview keeps the first 100 characters of a base64 payload for
// acknowledgements.
func truncatePreview(imageBase64 string) string {
	if len(imageBase64) > 100 {
		return imageBase64[:100] + "..."
	}
	return imageBase64
}
