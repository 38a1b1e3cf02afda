package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPusher captures every push so tests can assert on fan-out order
// and targets. Connections listed in dead return a delivery error.
type recordingPusher struct {
	pushes []recordedPush
	dead   map[string]bool
}

type recordedPush struct {
	connectionID string
	event        string
	payload      interface{}
}

func (p *recordingPusher) Push(connectionID, event string, payload interface{}) error {
	if p.dead[connectionID] {
		return errors.New("connection gone")
	}
	p.pushes = append(p.pushes, recordedPush{connectionID, event, payload})
	return nil
}

func (p *recordingPusher) eventsFor(connectionID string) []string {
	var events []string
	for _, push := range p.pushes {
		if push.connectionID == connectionID {
			events = append(events, push.event)
		}
	}
	return events
}

func (p *recordingPusher) last(connectionID string) (recordedPush, bool) {
	for i := len(p.pushes) - 1; i >= 0; i-- {
		if p.pushes[i].connectionID == connectionID {
			return p.pushes[i], true
		}
	}
	return recordedPush{}, false
}

func newTestHub(t *testing.T) (*Hub, *Store, *recordingPusher, *time.Time) {
	t.Helper()
	st, current := newTestStore(t)
	pusher := &recordingPusher{dead: make(map[string]bool)}
	return NewHub(st, pusher), st, pusher, current
}

func TestCreateAndJoinHandshake(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	// Admin hears about the creation, then about the mobile arriving.
	assert.Equal(t, []string{EventSessionCreated, EventMobileConnected}, pusher.eventsFor("conn-admin"))
	assert.Equal(t, []string{EventJoinedSession}, pusher.eventsFor("conn-mobile"))

	joined, ok := pusher.last("conn-mobile")
	require.True(t, ok)
	payload := joined.payload.(JoinedSessionEvent)
	assert.Equal(t, StatusConnected, payload.Status)
}

func TestCreateDuplicateAnswersCallerOnly(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-1", "abc123")
	hub.CreateSession("conn-2", "abc123")

	errorPush, ok := pusher.last("conn-2")
	require.True(t, ok)
	assert.Equal(t, EventError, errorPush.event)
	assert.Equal(t, CodeSessionExists, errorPush.payload.(ErrorEvent).Code)

	// The first admin saw nothing beyond its own confirmation.
	assert.Equal(t, []string{EventSessionCreated}, pusher.eventsFor("conn-1"))
}

func TestJoinExpiredSessionReportsExpiry(t *testing.T) {
	hub, _, pusher, current := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	*current = current.Add(11 * time.Minute)

	hub.JoinSession("conn-mobile", "abc123")

	errorPush, ok := pusher.last("conn-mobile")
	require.True(t, ok)
	assert.Equal(t, EventError, errorPush.event)
	event := errorPush.payload.(ErrorEvent)
	assert.Equal(t, CodeSessionExpired, event.Code)
	assert.Contains(t, event.Message, "expired")

	// The expired distinction matters to the phone: not-found means a bad
	// code, expired means scan a fresh one.
	hub.JoinSession("conn-mobile", "nonexistent")
	errorPush, _ = pusher.last("conn-mobile")
	assert.Equal(t, CodeSessionNotFound, errorPush.payload.(ErrorEvent).Code)
}

func TestSendImageFanOut(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	image := "data:image/jpeg;base64," + string(make([]byte, 500))
	hub.SendImage("conn-mobile", "abc123", image, "office chair")

	adminPush, ok := pusher.last("conn-admin")
	require.True(t, ok)
	assert.Equal(t, EventImageReceived, adminPush.event)
	received := adminPush.payload.(ImageReceivedEvent)
	assert.Equal(t, image, received.ImageBase64)
	assert.Equal(t, "office chair", received.Description)

	mobilePush, ok := pusher.last("conn-mobile")
	require.True(t, ok)
	assert.Equal(t, EventImageSent, mobilePush.event)
	ack := mobilePush.payload.(ImageSentEvent)
	assert.Equal(t, StatusProcessing, ack.Status)
	// The ack carries a preview, never the full payload.
	assert.Len(t, ack.ImagePreview, 103)
}

func TestSendResultFanOut(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")
	hub.SendImage("conn-mobile", "abc123", "aGVsbG8=", "")

	verdict := &Verdict{
		ValidationID: "v-1",
		ProductName:  "Office chair",
		Category:     "Office supplies",
		IsDeductible: true,
		Confidence:   0.92,
		Reason:       "Standard office equipment",
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, hub.SendResult("abc123", verdict))

	// Admin gets the full verdict, and only after the raw image event.
	adminEvents := pusher.eventsFor("conn-admin")
	require.Contains(t, adminEvents, EventImageReceived)
	require.Contains(t, adminEvents, EventValidationResult)
	imageIdx, resultIdx := -1, -1
	for i, event := range adminEvents {
		switch event {
		case EventImageReceived:
			imageIdx = i
		case EventValidationResult:
			resultIdx = i
		}
	}
	assert.Less(t, imageIdx, resultIdx)

	adminPush, _ := pusher.last("conn-admin")
	assert.Equal(t, verdict, adminPush.payload)

	// Mobile gets the reduced projection with the human-readable message.
	mobilePush, _ := pusher.last("conn-mobile")
	assert.Equal(t, EventValidationResult, mobilePush.event)
	reduced := mobilePush.payload.(MobileVerdictEvent)
	assert.Equal(t, "v-1", reduced.ValidationID)
	assert.Contains(t, reduced.Message, "DEDUCIBLE")
}

func TestSendResultMobileMessageForRejection(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	require.NoError(t, hub.SendResult("abc123", &Verdict{
		ValidationID: "v-2",
		ProductName:  "Perfume",
		IsDeductible: false,
	}))

	mobilePush, _ := pusher.last("conn-mobile")
	reduced := mobilePush.payload.(MobileVerdictEvent)
	assert.False(t, reduced.IsDeductible)
	assert.Contains(t, reduced.Message, "NO DEDUCIBLE")
}

func TestSendResultUnknownSession(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	err := hub.SendResult("missing", &Verdict{ValidationID: "v-1"})
	assert.Error(t, err)
}

func TestSendResultAppendsHistory(t *testing.T) {
	hub, st, _, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	require.NoError(t, hub.SendResult("abc123", &Verdict{ValidationID: "v-1", ProductName: "A"}))
	require.NoError(t, hub.SendResult("abc123", &Verdict{ValidationID: "v-2", ProductName: "B"}))

	session, err := st.Get("abc123")
	require.NoError(t, err)
	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, "v-1", history[0].ValidationID)
	assert.Equal(t, "v-2", history[1].ValidationID)
	assert.Equal(t, StatusReady, session.Status())
}

func TestAdminDisconnectKeepsSession(t *testing.T) {
	hub, st, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	hub.OnDisconnect("conn-admin")

	mobilePush, ok := pusher.last("conn-mobile")
	require.True(t, ok)
	assert.Equal(t, EventAdminDisconnected, mobilePush.event)

	// The session survives a dropped connection; only close or sweep ends it.
	_, err := st.Get("abc123")
	assert.NoError(t, err)
}

func TestMobileDisconnectNotifiesAdmin(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	hub.OnDisconnect("conn-mobile")

	adminPush, ok := pusher.last("conn-admin")
	require.True(t, ok)
	assert.Equal(t, EventMobileDisconnected, adminPush.event)
}

func TestDisconnectUnknownConnection(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)
	hub.OnDisconnect("never-seen")
	assert.Empty(t, pusher.pushes)
}

func TestCloseSessionNotifiesBothAndIsIdempotent(t *testing.T) {
	hub, st, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	hub.CloseSession("abc123")

	adminPush, _ := pusher.last("conn-admin")
	assert.Equal(t, EventSessionClosed, adminPush.event)
	mobilePush, _ := pusher.last("conn-mobile")
	assert.Equal(t, EventSessionClosed, mobilePush.event)

	_, err := st.Get("abc123")
	assert.Error(t, err)

	// Second close is silent.
	before := len(pusher.pushes)
	hub.CloseSession("abc123")
	assert.Equal(t, before, len(pusher.pushes))
}

func TestPushFailureDoesNotBreakOperation(t *testing.T) {
	hub, st, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")

	// Admin vanished between lookup and push; the mobile side still gets
	// its verdict and the session state still advances.
	pusher.dead["conn-admin"] = true
	require.NoError(t, hub.SendResult("abc123", &Verdict{ValidationID: "v-1", IsDeductible: true}))

	mobilePush, ok := pusher.last("conn-mobile")
	require.True(t, ok)
	assert.Equal(t, EventValidationResult, mobilePush.event)

	session, err := st.Get("abc123")
	require.NoError(t, err)
	assert.Len(t, session.History(), 1)
}

func TestGetSessionStatus(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.CreateSession("conn-admin", "abc123")
	hub.JoinSession("conn-mobile", "abc123")
	hub.SendImage("conn-mobile", "abc123", "aGVsbG8=", "")

	hub.GetSessionStatus("conn-admin", "abc123")
	adminPush, _ := pusher.last("conn-admin")
	require.Equal(t, EventSessionStatus, adminPush.event)
	status := adminPush.payload.(SessionStatusEvent)
	assert.Equal(t, "Admin", status.DeviceType)
	assert.True(t, status.IsConnected)
	assert.Equal(t, 1, status.ProcessedCount)
	assert.Equal(t, StatusProcessing, status.CurrentStatus)

	hub.GetSessionStatus("conn-mobile", "abc123")
	mobilePush, _ := pusher.last("conn-mobile")
	status = mobilePush.payload.(SessionStatusEvent)
	assert.Equal(t, "Mobile", status.DeviceType)
}

func TestGetSessionHistoryUnknownSession(t *testing.T) {
	hub, _, pusher, _ := newTestHub(t)

	hub.GetSessionHistory("conn-x", "missing")
	errorPush, ok := pusher.last("conn-x")
	require.True(t, ok)
	assert.Equal(t, EventError, errorPush.event)
	assert.Equal(t, CodeSessionNotFound, errorPush.payload.(ErrorEvent).Code)
}

func TestTruncatePreview(t *testing.T) {
	short := "aGVsbG8="
	assert.Equal(t, short, truncatePreview(short))

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'A'
	}
	preview := truncatePreview(string(long))
	assert.Len(t, preview, 103)
	assert.Equal(t, "...", preview[100:])
}
