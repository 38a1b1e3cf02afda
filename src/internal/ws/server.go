package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client-to-server actions on the pairing channel.
const (
	ActionCreateSession     = "createSession"
	ActionJoinSession       = "joinSession"
	ActionSendImage         = "sendImage"
	ActionGetSessionStatus  = "getSessionStatus"
	ActionGetSessionHistory = "getSessionHistory"
	ActionCloseSession      = "closeSession"
)

var errBufferFull = errors.New("send buffer full")
var errConnectionGone = errors.New("connection not registered")

// ClientMessage is one inbound frame from either device.
type ClientMessage struct {
	Action      string `json:"action"`
	SessionID   string `json:"sessionId"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Description string `json:"description,omitempty"`
}

// Envelope wraps every outbound push with its event name.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Server owns the websocket connections and bridges them to the pairing hub.
// It implements validation.Pusher.
type Server struct {
	cfg      *config.SessionConfig
	hub      *validation.Hub
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewServer(cfg *config.Configuration) *Server {
	return &Server{
		cfg:         &cfg.Session,
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The pairing surface is open; session id knowledge is the
				// only boundary.
				return true
			},
		},
	}
}

// SetHub wires the pairing hub; called once during dependency setup (the hub
// itself needs the server as its Pusher).
func (s *Server) SetHub(hub *validation.Hub) {
	s.hub = hub
}

// Push delivers one event to one connection. At-most-once: when the target
// is gone or its buffer is full the event is dropped and the error reported
// to the caller for logging.
func (s *Server) Push(connectionID, event string, payload interface{}) error {
	s.mu.RLock()
	conn, ok := s.connections[connectionID]
	s.mu.RUnlock()
	if !ok {
		return errConnectionGone
	}

	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	// The connection may have unregistered while we marshalled; enqueue
	// re-checks under the connection's own lock.
	return conn.enqueue(data)
}

// HandleConnection upgrades the HTTP request and runs the connection's read
// and write loops.
func (s *Server) HandleConnection(c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade websocket")
		return
	}

	conn := &Connection{
		ID:   uuid.New().String(),
		Conn: socket,
		Send: make(chan []byte, 256),
	}

	s.mu.Lock()
	s.connections[conn.ID] = conn
	s.mu.Unlock()

	logrus.WithField("connection_id", conn.ID).Info("Websocket connection established")

	socket.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)
}

func (s *Server) readPump(conn *Connection) {
	readTimeout := time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second

	defer func() {
		s.hub.OnDisconnect(conn.ID)
		s.unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("connection_id", conn.ID).Warn("Websocket read error")
			}
			break
		}

		s.dispatch(conn, message)
	}
}

func (s *Server) writePump(conn *Connection) {
	writeTimeout := time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(s.cfg.PingIntervalSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("connection_id", conn.ID).Warn("Failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame to the hub. A panic while handling a
// single frame is recovered and answered with a generic error; it never
// tears down the connection or other sessions.
func (s *Server) dispatch(conn *Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"connection_id": conn.ID,
				"panic":         r,
			}).Error("Recovered from panic while handling message")
			s.hub.PushError(conn.ID, validation.CodeInternalError, "Internal error")
		}
	}()

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.hub.PushError(conn.ID, validation.CodeUnknownAction, "Invalid JSON message")
		return
	}

	switch msg.Action {
	case ActionCreateSession:
		s.hub.CreateSession(conn.ID, msg.SessionID)
	case ActionJoinSession:
		s.hub.JoinSession(conn.ID, msg.SessionID)
	case ActionSendImage:
		s.hub.SendImage(conn.ID, msg.SessionID, msg.ImageBase64, msg.Description)
	case ActionGetSessionStatus:
		s.hub.GetSessionStatus(conn.ID, msg.SessionID)
	case ActionGetSessionHistory:
		s.hub.GetSessionHistory(conn.ID, msg.SessionID)
	case ActionCloseSession:
		s.hub.CloseSession(msg.SessionID)
	default:
		s.hub.PushError(conn.ID, validation.CodeUnknownAction, "Unknown action: "+msg.Action)
	}
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	_, ok := s.connections[conn.ID]
	delete(s.connections, conn.ID)
	s.mu.Unlock()

	if ok {
		conn.shutdown()
		logrus.WithField("connection_id", conn.ID).Info("Websocket connection unregistered")
	}
}

// ConnectionCount reports how many websocket clients are attached.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
