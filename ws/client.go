package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/command"
	"github.com/hubbub-chat/hubbub/globals"
	"github.com/hubbub-chat/hubbub/notify"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/hubbub-chat/hubbub/types"
	"github.com/mitchellh/mapstructure"
)

const (
	sendChannelSize = 1000
)

// Client is a middleman between the websocket connection and the hub. It
// holds the per-connection state: the connection id, the bound identity (nil
// while anonymous) and the active room.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	ClientId string

	service  *chat.Service
	notifier notify.Notifier

	mu       sync.Mutex
	user     *types.User
	roomName string

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write access to Send. If the WaitGroup is done,
	// it is safe to close all channels (all loops are done and there are no more write operations on the channels)
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, clientId string, user *types.User, service *chat.Service, notifier notify.Notifier, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		ClientId: clientId,
		service:  service,
		notifier: notifier,
		user:     user,
		doneChan: doneChan,
	}
}

func (c *Client) User() *types.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) RoomName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomName
}

// SendEventHistory replays the hub's in-memory history to this client.
func (c *Client) SendEventHistory(events []*types.Event, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	for _, event := range events {
		if !c.EvaluateFilterEvent(event) {
			continue
		}
		messageBytes, err := json.Marshal(types.WireEvent{Event: event})
		if err != nil {
			globals.AppLogger.Error("could not marshal event", "error", err)
			continue
		}
		c.hub.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.Send <- messageBytes
		}
		c.hub.RUnlock()
	}
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	message := &types.WebsocketMessage{}
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("ws closed unexpected", "error", err)
			}
			return
		}

		err = json.Unmarshal(raw, &message)
		if err != nil {
			globals.AppLogger.Error("could not unmarshal ws message", "error", err)
			return
		}

		switch message.Event {
		case types.WireMessageTypeChat:
			chatMsgMap := make(map[string]interface{})
			err = json.Unmarshal(message.Data, &chatMsgMap)
			if err != nil {
				globals.AppLogger.Error("could not unmarshal chat message", "error", err)
				return
			}
			payload := types.ChatPayload{}
			err = mapstructure.WeakDecode(chatMsgMap, &payload)
			if err != nil {
				globals.AppLogger.Error("could not decode chat message", "error", err)
				return
			}
			c.handleInput(payload.Message)
		}
	}
}

// handleInput runs one line of client input: a leading slash dispatches a
// command, everything else is posted to the active room.
func (c *Client) handleInput(text string) {
	repo := c.hub.repo
	user, _ := repo.GetUserByClientId(c.ClientId)
	c.mu.Lock()
	c.user = user
	roomName := c.roomName
	c.mu.Unlock()

	userId := ""
	if user != nil {
		userId = user.Id
		c.service.UpdateActivity(user)
	}

	mgr := command.NewManager(c.ClientId, userId, roomName, c.service, repo, c.notifier)
	handled, err := mgr.TryHandleCommand(text)
	if handled {
		if err != nil {
			c.sendError(err)
			return
		}
		c.refreshSession(text)
		return
	}

	// a plain chat message needs an identity and an active room
	user, verr := repository.VerifyUserId(repo, userId)
	if verr != nil {
		c.sendError(verr)
		return
	}
	room, verr := repository.VerifyUserRoom(repo, user, roomName)
	if verr != nil {
		c.sendError(verr)
		return
	}
	msg := c.service.AddMessage(user, room, text)
	if err := repo.CommitChanges(); err != nil {
		globals.AppLogger.Error("could not commit chat message", "error", err)
		c.sendError(chat.Errorf("Someone else changed that at the same time, please try again."))
		return
	}
	tags := map[string]string{
		"id":      msg.Id,
		"name":    user.Name,
		"message": msg.Content,
	}
	c.hub.Publish([]*types.Event{types.NewEvent(room.Name, &types.Source{User: user}, "", types.EventTypeChat, tags)})
}

// refreshSession re-derives the connection state after a successful command:
// the identity binding may have changed (claim, rename) and the active room
// follows joins and leaves.
func (c *Client) refreshSession(text string) {
	repo := c.hub.repo
	user, _ := repo.GetUserByClientId(c.ClientId)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user

	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(text), "/"))
	if len(parts) >= 2 && user != nil {
		switch strings.ToLower(parts[0]) {
		case "join", "create":
			if repo.IsMember(user.Id, parts[1]) {
				c.roomName = parts[1]
			}
		}
	}
	if c.roomName != "" {
		if user == nil || !repo.IsMember(user.Id, c.roomName) {
			c.roomName = ""
		}
	}
}

// sendError reports a failed input to this connection only.
func (c *Client) sendError(err error) {
	tags := map[string]string{"message": err.Error()}
	event := types.NewEvent("", nil, "", types.EventTypeError, tags)
	raw, merr := json.Marshal(types.WireEvent{Event: event})
	if merr != nil {
		globals.AppLogger.Error("could not marshal error event", "error", merr)
		return
	}
	c.hub.RLock()
	if _, ok := c.hub.clients[c]; ok {
		c.Send <- raw
	}
	c.hub.RUnlock()
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
