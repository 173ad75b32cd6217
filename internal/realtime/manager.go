package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNotConnected is returned by socket-only calls when there is no live
// connection.
var ErrNotConnected = errors.New("realtime: not connected")

// SendError is a send refused by the server on either path.
type SendError struct {
	Message string
	Blocked bool
	Status  int // HTTP status on the fallback path, 0 on the socket
}

func (e *SendError) Error() string { return "send rejected: " + e.Message }

// Unwrap lets errors.Is(err, apperr.ErrBlocked) detect blocked sends.
func (e *SendError) Unwrap() error {
	if e.Blocked {
		return apperr.ErrBlocked
	}
	return nil
}

// ClientConfig configures a ClientManager.
type ClientConfig struct {
	URL        string // websocket endpoint, e.g. ws://host/ws
	HTTPBase   string // REST base for the send fallback, e.g. http://host
	Token      string
	UserID     bson.ObjectID
	Dialer     *websocket.Dialer
	HTTPClient *http.Client
	Logger     *slog.Logger
	// OnEvent receives every server frame that is not a reply to a request.
	OnEvent func(Envelope)
}

// ClientManager owns one user's chat connection. Whoever composes the client
// creates it and drives its lifecycle with Connect, Close and Reconnect.
type ClientManager struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{} // closed when conn's read loop exits
	pending map[string]chan Envelope
	chats   map[bson.ObjectID]bool // rejoined on reconnect

	writeMu sync.Mutex
}

// NewClientManager returns a disconnected manager.
func NewClientManager(cfg ClientConfig) *ClientManager {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ClientManager{
		cfg:     cfg,
		logger:  logging.OrDiscard(cfg.Logger),
		pending: make(map[string]chan Envelope),
		chats:   make(map[bson.ObjectID]bool),
	}
}

// Connect dials the server, announces the user and rejoins open chats.
// Connecting while connected is a no-op.
func (m *ClientManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.cfg.Token)
	conn, resp, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", m.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	if m.conn != nil {
		// lost a race with another Connect
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	done := make(chan struct{})
	m.conn, m.done = conn, done
	chats := make([]bson.ObjectID, 0, len(m.chats))
	for id := range m.chats {
		chats = append(chats, id)
	}
	m.mu.Unlock()

	go m.readLoop(conn, done)

	if err := m.emit(EventUserOnline, "", UserOnline{UserID: m.cfg.UserID}); err != nil {
		_ = m.Close()
		return err
	}
	for _, other := range chats {
		if err := m.emit(EventJoinChat, "", ChatRef{UserID: m.cfg.UserID, OtherUserID: other}); err != nil {
			return err
		}
	}
	return nil
}

// Close drops the connection. Open chats are remembered for Reconnect.
func (m *ClientManager) Close() error {
	m.mu.Lock()
	conn, done := m.conn, m.done
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}

	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	m.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

// Reconnect closes any current connection and connects again.
func (m *ClientManager) Reconnect(ctx context.Context) error {
	if err := m.Close(); err != nil {
		m.logger.Debug("close before reconnect", "error", err)
	}
	return m.Connect(ctx)
}

// Connected reports whether a connection is live.
func (m *ClientManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// JoinChat enters the room shared with other.
func (m *ClientManager) JoinChat(other bson.ObjectID) error {
	m.mu.Lock()
	m.chats[other] = true
	m.mu.Unlock()
	return m.emit(EventJoinChat, "", ChatRef{UserID: m.cfg.UserID, OtherUserID: other})
}

// LeaveChat leaves the room shared with other.
func (m *ClientManager) LeaveChat(other bson.ObjectID) error {
	m.mu.Lock()
	delete(m.chats, other)
	m.mu.Unlock()
	return m.emit(EventLeaveChat, "", ChatRef{UserID: m.cfg.UserID, OtherUserID: other})
}

// Typing tells other whether the user is typing.
func (m *ClientManager) Typing(other bson.ObjectID, typing bool) error {
	return m.emit(EventTyping, "", Typing{UserID: m.cfg.UserID, OtherUserID: other, IsTyping: typing})
}

// CheckUserInChat asks whether other is viewing the shared thread.
func (m *ClientManager) CheckUserInChat(ctx context.Context, other bson.ObjectID) (bool, error) {
	reply, err := m.request(ctx, EventCheckUserInChat, CheckUserInChat{OtherUserID: other})
	if err != nil {
		return false, err
	}
	var out UserInChat
	if err := reply.Decode(&out); err != nil {
		return false, err
	}
	return out.InChat, nil
}

// Send delivers a message over the socket, or through POST /messages/send
// when the socket is down or the write fails. Either way the saved message
// is returned.
func (m *ClientManager) Send(ctx context.Context, receiverID bson.ObjectID, body string) (*data.Message, error) {
	reply, err := m.request(ctx, EventSendMessage, SendMessage{SenderID: m.cfg.UserID, ReceiverID: receiverID, Message: body})
	switch {
	case err == nil:
		if reply.Event == EventMessageError || reply.Event == EventError {
			var me MessageError
			_ = reply.Decode(&me)
			return nil, &SendError{Message: me.Message, Blocked: me.Blocked}
		}
		var msg data.Message
		if err := reply.Decode(&msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case errors.Is(err, ErrNotConnected), errors.Is(err, errWriteFailed):
		m.logger.Debug("socket unavailable, sending over http", "error", err)
		return m.sendHTTP(ctx, receiverID, body)
	default:
		return nil, err
	}
}

var errWriteFailed = errors.New("realtime: write failed")

func (m *ClientManager) sendHTTP(ctx context.Context, receiverID bson.ObjectID, body string) (*data.Message, error) {
	payload, err := json.Marshal(SendMessage{SenderID: m.cfg.UserID, ReceiverID: receiverID, Message: body})
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(m.cfg.HTTPBase, "/") + "/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.Token)

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send over http: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Message string        `json:"message"`
		Blocked bool          `json:"blocked"`
		Data    *data.Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode send response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 || out.Data == nil {
		return nil, &SendError{Message: out.Message, Blocked: out.Blocked, Status: resp.StatusCode}
	}
	return out.Data, nil
}

// request sends a frame with a fresh id and waits for the frame echoing it.
func (m *ClientManager) request(ctx context.Context, event string, payload any) (Envelope, error) {
	id := uuid.NewString()
	ch := make(chan Envelope, 1)

	m.mu.Lock()
	if m.conn == nil {
		m.mu.Unlock()
		return Envelope{}, ErrNotConnected
	}
	done := m.done
	m.pending[id] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	if err := m.emit(event, id, payload); err != nil {
		return Envelope{}, err
	}
	select {
	case reply := <-ch:
		return reply, nil
	case <-done:
		return Envelope{}, errConnClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (m *ClientManager) emit(event, id string, payload any) error {
	ev, err := NewEnvelope(event, id, payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("%w: %v", errWriteFailed, err)
	}
	return nil
}

func (m *ClientManager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = conn.Close()
		close(done)
	}()

	for {
		var ev Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("realtime connection lost", "error", err)
			}
			return
		}
		if ev.ID != "" {
			m.mu.Lock()
			ch, ok := m.pending[ev.ID]
			m.mu.Unlock()
			if ok {
				select {
				case ch <- ev:
				default:
				}
				continue
			}
		}
		if m.cfg.OnEvent != nil {
			m.cfg.OnEvent(ev)
		}
	}
}
