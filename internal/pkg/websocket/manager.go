package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	jwtpkg "github.com/piresc/schoolbus/internal/pkg/jwt"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Client is one authenticated WebSocket connection. Writes are serialized;
// reads belong to the connection's handler goroutine.
type Client struct {
	ID     string
	UserID string
	Role   string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Send writes an event envelope to the client
func (c *Client) Send(event, requestID string, data interface{}) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling message data: %w", err)
	}
	return c.write(models.WSMessage{Event: event, RequestID: requestID, Data: rawData})
}

// SendError writes an error envelope
func (c *Client) SendError(requestID, code, message string) error {
	return c.Send(constants.EventError, requestID, models.WSErrorMessage{Code: code, Message: message})
}

// Ping writes a control ping frame
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) write(msg models.WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// ReadMessage blocks for the next envelope
func (c *Client) ReadMessage() (models.WSMessage, error) {
	var msg models.WSMessage
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

// SetReadDeadline bounds the next read
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetPongHandler calls fn on every pong frame
func (c *Client) SetPongHandler(fn func()) {
	c.conn.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// IsUnexpectedClose reports whether err is a read error other than a normal close
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure)
}

// IsDecodeError reports whether err is a malformed JSON frame rather than a
// transport failure. A truncated or empty frame surfaces as io.ErrUnexpectedEOF;
// a dropped connection surfaces as a *websocket.CloseError instead.
func IsDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Manager authenticates, upgrades and tracks WebSocket connections
type Manager struct {
	sync.RWMutex
	clients  map[string]*Client
	cfg      models.JWTConfig
	upgrader websocket.Upgrader
}

// NewManager creates a new WebSocket manager
func NewManager(jwtConfig models.JWTConfig) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		cfg:     jwtConfig,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection authenticates the handshake, upgrades it and runs
// handleClient until it returns. roles restricts who may connect; an empty
// list admits every role.
func (m *Manager) HandleConnection(c echo.Context, roles []string, handleClient func(*Client) error) error {
	client, err := m.authenticateClient(c, roles)
	if err != nil {
		return err
	}

	ws, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws.SetReadLimit(maxMessageSize)
	client.conn = ws

	m.AddClient(client)
	defer func() {
		m.RemoveClient(client.ID)
		ws.Close()
	}()

	logger.Info("WebSocket client connected",
		logger.String("user_id", client.UserID),
		logger.String("role", client.Role))
	return handleClient(client)
}

func (m *Manager) authenticateClient(c echo.Context, roles []string) (*Client, error) {
	token, err := jwtpkg.TokenFromRequest(c.Request())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	claims, err := jwtpkg.ValidateToken(token, m.cfg)
	if err != nil {
		logger.Warn("Token validation failed", logger.Err(err))
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	if len(roles) > 0 && !contains(roles, claims.Role) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "Role not allowed")
	}

	return &Client{
		ID:     uuid.NewString(),
		UserID: claims.UserID,
		Role:   claims.Role,
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// AddClient safely adds a client to the manager
func (m *Manager) AddClient(client *Client) {
	m.Lock()
	defer m.Unlock()
	m.clients[client.ID] = client
}

// RemoveClient safely removes a client from the manager
func (m *Manager) RemoveClient(id string) {
	m.Lock()
	defer m.Unlock()
	delete(m.clients, id)
}

// Count returns the number of open connections
func (m *Manager) Count() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.clients)
}

// CloseAll closes every open connection, ending their handlers
func (m *Manager) CloseAll() {
	m.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
