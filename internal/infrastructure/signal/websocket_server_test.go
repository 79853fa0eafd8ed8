package signal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"
	"pairnet/internal/infrastructure/signal"
)

// fakeController records the calls the websocket server routes into the
// session controller.
type fakeController struct {
	mu      sync.Mutex
	signals []string
	left    []domain.ParticipantID
}

func (f *fakeController) Enter(ctx context.Context, p *domain.Participant) error { return nil }

func (f *fakeController) Leave(ctx context.Context, id domain.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, id)
	return nil
}

func (f *fakeController) Skip(ctx context.Context, id domain.ParticipantID) error { return nil }

func (f *fakeController) Extend(ctx context.Context, id domain.ParticipantID) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (f *fakeController) RequestConnection(ctx context.Context, id domain.ParticipantID) error {
	return nil
}

func (f *fakeController) HandleMediaSignal(ctx context.Context, from domain.ParticipantID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, string(from)+":"+string(payload))
	return nil
}

func (f *fakeController) MediaConnected(ctx context.Context, id domain.ParticipantID) {}

func (f *fakeController) ActiveSession(ctx context.Context, id domain.ParticipantID) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (f *fakeController) Shutdown(ctx context.Context) error { return nil }

func (f *fakeController) signalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

func (f *fakeController) leftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.left)
}

type wsFixture struct {
	server     *signal.WebSocketServer
	controller *fakeController
	auth       services.AuthService
	ts         *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	auth := services.NewAuthService("test-secret", time.Hour)
	server := signal.NewWebSocketServer(auth, zap.NewNop().Sugar())
	controller := &fakeController{}
	server.SetController(controller)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)

	return &wsFixture{server: server, controller: controller, auth: auth, ts: ts}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.auth.GenerateRoomToken(domain.UserID(userID), "event-1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	resp, err := http.Get(f.ts.URL + "?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketDeliversEngineNotifications(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		return f.server.IsConnected("alice")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.server.SendToParticipant("alice", map[string]interface{}{
		"type":       "match_found",
		"partner_id": "bob",
	}))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "match_found", msg["type"])
	assert.Equal(t, "bob", msg["partner_id"])
}

func TestWebSocketSendToDisconnectedParticipant(t *testing.T) {
	f := newWSFixture(t)

	err := f.server.SendToParticipant("ghost", map[string]interface{}{"type": "timer"})
	assert.Error(t, err)
}

func TestWebSocketRoutesMediaSignaling(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	payload := `{"type":"offer","sdp":"v=0..."}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	require.Eventually(t, func() bool {
		return f.controller.signalCount() == 1
	}, time.Second, 5*time.Millisecond)

	f.controller.mu.Lock()
	defer f.controller.mu.Unlock()
	assert.Equal(t, "alice:"+payload, f.controller.signals[0])
}

func TestWebSocketRejectsUnknownMessageType(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "unknown message type")
}

func TestWebSocketDisconnectTriggersLeave(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		return f.server.IsConnected("alice")
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return f.controller.leftCount() == 1 && !f.server.IsConnected("alice")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ParticipantID("alice"), f.controller.left[0])
}

func TestWebSocketReconnectReplacesConnection(t *testing.T) {
	f := newWSFixture(t)

	first := f.dial(t, "alice")
	require.Eventually(t, func() bool {
		return f.server.IsConnected("alice")
	}, time.Second, 5*time.Millisecond)

	second := f.dial(t, "alice")

	// The old connection is force-closed once the replacement registers;
	// client-side writes on it start failing.
	require.Eventually(t, func() bool {
		return first.WriteControl(websocket.PingMessage, nil, time.Now().Add(50*time.Millisecond)) != nil
	}, 2*time.Second, 20*time.Millisecond)

	// The replacement connection is the live one.
	require.NoError(t, f.server.SendToParticipant("alice", map[string]interface{}{"type": "timer"}))
	var msg map[string]interface{}
	require.NoError(t, second.ReadJSON(&msg))
	assert.Equal(t, "timer", msg["type"])

	assert.Equal(t, []domain.ParticipantID{"alice"}, f.server.ConnectedParticipants())
}
