package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/internal/core/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// clientConn wraps a websocket connection with a write lock; the engine
// pushes to participants from several goroutines.
type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) writeJSON(data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(data)
}

func (c *clientConn) writeControl(messageType int, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(messageType, nil)
}

// WebSocketServer is the participant-facing push channel: match
// notifications, timer updates and media signaling all flow through it. It
// is also the engine's ports.SignalSender.
type WebSocketServer struct {
	auth       services.AuthService
	controller ports.SessionController

	connections map[domain.ParticipantID]*clientConn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

var _ ports.SignalSender = (*WebSocketServer)(nil)

// inboundMessage is what a client sends upstream. Media signaling payloads
// are forwarded verbatim to the participant's media session.
type inboundMessage struct {
	Type string `json:"type"`
}

func NewWebSocketServer(auth services.AuthService, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		auth:         auth,
		connections:  make(map[domain.ParticipantID]*clientConn),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetController wires the session controller after construction; the
// controller itself needs the server as its SignalSender.
func (s *WebSocketServer) SetController(controller ports.SessionController) {
	s.controller = controller
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
	s.readTimeout = timeout
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	participantID := domain.ParticipantID(claims.UserID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &clientConn{conn: conn}

	// A reconnecting participant replaces its old connection.
	s.mu.Lock()
	existing, isReconnect := s.connections[participantID]
	if isReconnect && existing != nil {
		existing.conn.Close()
		s.logger.Infow("Closing old connection for reconnecting participant",
			"participant_id", participantID)
	}
	s.connections[participantID] = client
	s.mu.Unlock()

	s.logger.Infow("Participant connected",
		"participant_id", participantID,
		"event_id", claims.EventID,
		"reconnect", isReconnect)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan json.RawMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- raw
		}
	}()

	for {
		select {
		case raw := <-messageChan:
			if err := s.handleMessage(r.Context(), participantID, raw); err != nil {
				s.logger.Infow("Error handling message from participant",
					"participant_id", participantID, "error", err)
				s.sendError(client, err.Error())
			}

		case <-pingTicker.C:
			if err := client.writeControl(websocket.PingMessage, time.Now().Add(s.writeTimeout)); err != nil {
				s.logger.Infow("Error sending ping",
					"participant_id", participantID, "error", err)
				s.disconnect(participantID, client)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("Error reading message from participant",
					"participant_id", participantID, "error", err)
			}
			s.disconnect(participantID, client)
			return
		}
	}
}

// disconnect removes the connection and treats the drop as leaving the
// room: the partner is released immediately instead of waiting out a dead
// call.
func (s *WebSocketServer) disconnect(participantID domain.ParticipantID, client *clientConn) {
	s.mu.Lock()
	// A reconnect may already have replaced this connection.
	if current, ok := s.connections[participantID]; ok && current == client {
		delete(s.connections, participantID)
	} else {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.controller != nil {
		if err := s.controller.Leave(context.Background(), participantID); err != nil {
			s.logger.Debugw("Leave on disconnect",
				"participant_id", participantID, "error", err)
		}
	}

	s.logger.Infow("Participant disconnected", "participant_id", participantID)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, participantID domain.ParticipantID, raw json.RawMessage) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case "offer", "answer", "ice_candidate":
		if s.controller == nil {
			return fmt.Errorf("session controller not available")
		}
		return s.controller.HandleMediaSignal(ctx, participantID, raw)
	case "":
		return fmt.Errorf("message type is required")
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// SendToParticipant pushes one payload to a connected participant.
func (s *WebSocketServer) SendToParticipant(id domain.ParticipantID, message interface{}) error {
	s.mu.RLock()
	client, exists := s.connections[id]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("participant %s not connected", id)
	}
	return client.writeJSON(message)
}

func (s *WebSocketServer) sendError(client *clientConn, message string) {
	client.writeJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

func (s *WebSocketServer) IsConnected(id domain.ParticipantID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.connections[id]
	return exists
}

func (s *WebSocketServer) ConnectedParticipants() []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.ParticipantID, 0, len(s.connections))
	for id := range s.connections {
		ids = append(ids, id)
	}
	return ids
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
