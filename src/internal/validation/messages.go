package validation

import "time"

// Server-to-client event names pushed over the pairing channel.
const (
	EventSessionCreated     = "SessionCreated"
	EventJoinedSession      = "JoinedSession"
	EventMobileConnected    = "MobileConnected"
	EventMobileDisconnected = "MobileDisconnected"
	EventAdminDisconnected  = "AdminDisconnected"
	EventImageReceived      = "ImageReceived"
	EventImageSent          = "ImageSent"
	EventProcessingStarted  = "ProcessingStarted"
	EventValidationResult   = "ValidationResult"
	EventSessionStatus      = "SessionStatus"
	EventSessionHistory     = "SessionHistory"
	EventSessionClosed      = "SessionClosed"
	EventError              = "Error"
)

// Protocol error codes delivered in Error pushes.
const (
	CodeSessionExists   = "SESSION_EXISTS"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeInvalidImage    = "INVALID_IMAGE"
	CodeUnknownAction   = "UNKNOWN_ACTION"
	CodeInternalError   = "INTERNAL_ERROR"
)

type SessionCreatedEvent struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type JoinedSessionEvent struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type MobileConnectedEvent struct {
	SessionID   string    `json:"sessionId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Message     string    `json:"message"`
}

type PeerDisconnectedEvent struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ImageReceivedEvent struct {
	SessionID   string    `json:"sessionId"`
	ImageBase64 string    `json:"imageBase64"`
	Description string    `json:"description,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Message     string    `json:"message"`
}

type ImageSentEvent struct {
	SessionID    string `json:"sessionId"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	ImagePreview string `json:"imagePreview"`
}

type ProcessingStartedEvent struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MobileVerdictEvent is the reduced projection of a Verdict pushed to the
// mobile side; the admin side receives the full Verdict.
type MobileVerdictEvent struct {
	ValidationID string  `json:"validationId"`
	ProductName  string  `json:"productName"`
	IsDeductible bool    `json:"isDeductible"`
	Category     string  `json:"category"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"`
	Message      string  `json:"message"`
}

type SessionStatusEvent struct {
	SessionID      string    `json:"sessionId"`
	IsConnected    bool      `json:"isConnected"`
	DeviceType     string    `json:"deviceType"`
	LastActivity   time.Time `json:"lastActivity"`
	ProcessedCount int       `json:"processedCount"`
	CurrentStatus  string    `json:"currentStatus"`
	StatusMessage  string    `json:"statusMessage"`
}

type SessionClosedEvent struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusMessage maps a session status to the human message shown on both
// devices.
func statusMessage(status string) string {
	switch status {
	case StatusCreated:
		return "Waiting for mobile connection..."
	case StatusConnected:
		return "Mobile connected. Ready to validate."
	case StatusProcessing:
		return "Processing image..."
	case StatusCompleted:
		return "Validation completed"
	case StatusReady:
		return "Ready for next validation"
	default:
		return "Unknown status"
	}
}

// mobileVerdictMessage keeps the wire values the mobile client renders.
func mobileVerdictMessage(deductible bool) string {
	if deductible {
		return "✅ DEDUCIBLE"
	}
	return "❌ NO DEDUCIBLE"
}
