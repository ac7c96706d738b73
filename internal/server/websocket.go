package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

// Client represents a WebSocket chat connection for one user. Inbound
// message frames run through the engine like any other channel; engine
// notifications for the user are pushed as they arrive
type Client struct {
	engine   *engine.Engine
	server   *Server
	conn     *websocket.Conn
	consumer engine.NotificationConsumer
	userID   api.UserID
}

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
	wsBufferSize       = 1024
	incomingBufferSize = 16
	messageTimeout     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	userID := api.UserID(strings.TrimSpace(c.Query("user_id")))
	if userID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  "user_id query parameter is required",
			Status: http.StatusBadRequest,
		})
		return
	}

	// attach before the handshake completes so nothing published after
	// the client connects can slip past
	consumer := s.engine.Notifier().NewConsumer()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		consumer.Close()
		slog.Error("WebSocket upgrade failed",
			log.UserID(userID), log.Error(err))
		return
	}

	client := &Client{
		engine:   s.engine,
		server:   s,
		conn:     conn,
		consumer: consumer,
		userID:   userID,
	}
	s.registerWebSocket(client)

	go client.run()
}

func (c *Client) run() {
	defer func() {
		c.server.unregisterWebSocket(c)
		c.consumer.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	notes := make(chan *api.Notification, c.engine.Notifier().Buffer())
	go c.relayNotifications(notes)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleFrame(message)

		case note, ok := <-notes:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendNotification(note) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

// relayNotifications drains the consumer into a bounded channel so one
// stalled socket cannot hold the notification topic open; when the buffer
// fills, the notification is dropped rather than block
func (c *Client) relayNotifications(notes chan<- *api.Notification) {
	defer close(notes)
	for note := range c.consumer.Receive() {
		select {
		case notes <- note:
		default:
			slog.Warn("WebSocket notification dropped",
				log.UserID(c.userID))
		}
	}
}

func (c *Client) handleFrame(message []byte) {
	var frame api.ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.UserID(c.userID), log.Error(err))
		c.writeFrame(&api.ServerFrame{
			Type:  api.FrameError,
			Error: "malformed frame",
		})
		return
	}

	if frame.Type != api.FrameMessage {
		return
	}

	msg := &api.Message{
		UserID:     c.userID,
		Text:       frame.Text,
		Intent:     frame.Intent,
		Channel:    api.ChannelWeb,
		ReceivedAt: c.engine.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	res, err := c.engine.HandleMessage(ctx, msg)
	if err != nil {
		slog.Error("WebSocket message not handled",
			log.UserID(c.userID), log.Error(err))
		c.writeFrame(&api.ServerFrame{
			Type:  api.FrameError,
			Error: err.Error(),
		})
		return
	}

	c.writeFrame(&api.ServerFrame{
		Type:     api.FrameResponse,
		Response: res,
	})
}

// sendNotification pushes an engine-initiated response if it belongs to
// this connection's user
func (c *Client) sendNotification(note *api.Notification) bool {
	if note.UserID != c.userID {
		return true
	}
	return c.writeFrame(&api.ServerFrame{
		Type:     api.FrameNotification,
		Response: note.Response,
	})
}

func (c *Client) writeFrame(frame *api.ServerFrame) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		slog.Error("WebSocket write failed",
			log.UserID(c.userID), log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}

// Close shuts the connection down from the server side
func (c *Client) Close() {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(writeWait),
	)
	_ = c.conn.Close()
}
