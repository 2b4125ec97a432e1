package ws

import (
	"container/ring"
	"encoding/json"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/filter"
	"github.com/hubbub-chat/hubbub/globals"
	"github.com/hubbub-chat/hubbub/persistence"
	"github.com/hubbub-chat/hubbub/types"
	"github.com/robfig/cron/v3"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	defaultHistorySize   = 20
	broadcastChannelSize = 1000
	historyChannelSize   = 1000

	defaultSweepSpec     = "* * * * *"
	defaultInactiveAfter = 5 * time.Minute
	defaultOfflineAfter  = 30 * time.Minute
)

// Hub fans events out to the connected clients. There is one hub per
// service; room scoping happens per event via the repository's membership
// sets, addressed events additionally carry an expr target filter.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Broadcast raw payloads to all clients.
	Broadcast chan []byte

	// BroadcastEvents delivers domain events, room- and filter-scoped.
	BroadcastEvents chan []*types.Event

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// keep the event history in a ring buffer
	History                  chan *types.Event
	historyStart, historyEnd *ring.Ring

	// global configuration
	Cfg *config.Config

	repo chat.Repository

	// persistence
	Persister persistence.Persister

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, repo chat.Repository, persister persistence.Persister) *Hub {
	historySize := defaultHistorySize
	if cfg.HistoryConfig.HistorySize > 0 {
		historySize = cfg.HistoryConfig.HistorySize
	}
	history := ring.New(historySize)
	hub := &Hub{
		clients:         make(map[*Client]struct{}),
		Broadcast:       make(chan []byte, broadcastChannelSize),
		BroadcastEvents: make(chan []*types.Event, broadcastChannelSize),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		History:         make(chan *types.Event, historyChannelSize),
		historyStart:    history,
		historyEnd:      history,
		Cfg:             cfg,
		repo:            repo,
		Persister:       persister,
	}
	if persister != nil {
		var t time.Time
		n := time.Now().Add(time.Minute)
		events, err := persister.GetEventHistory(t, n, 0, historySize)
		if err != nil {
			globals.AppLogger.Error("could not load persisted events", "error", err)
		}
		// GetEventHistory returns newest first, the ring wants them oldest first
		for i := len(events) - 1; i >= 0; i-- {
			hub.historyEnd.Value = events[i]
			hub.historyEnd = hub.historyEnd.Next()
			if hub.historyEnd == hub.historyStart {
				hub.historyStart = hub.historyStart.Next()
			}
		}
	}
	return hub
}

// Publish queues domain events for delivery. This is the notification sink
// the dispatcher's notifier writes to.
func (h *Hub) Publish(events []*types.Event) {
	h.BroadcastEvents <- events
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the main hub event loop handling register, unregister and broadcast events.
func (h *Hub) Run() {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	sweepSpec := h.Cfg.PresenceConfig.SweepSpec
	if sweepSpec == "" {
		sweepSpec = defaultSweepSpec
	}
	entryId, err := cronRunner.AddFunc(sweepSpec, h.sweepPresence)
	if err != nil {
		globals.AppLogger.Error("could not schedule presence sweep", "error", err)
	} else {
		defer cronRunner.Remove(entryId)
	}
	defer cronRunner.Stop()
	cronRunner.Start()
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new client", "clientId", client.ClientId)
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			// the connection handler waits on this before starting the
			// read/write loops
			client.Done()

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				if _, ok := h.clients[client]; ok {
					h.RUnlock()
					globals.AppLogger.Debug("unregister client", "clientId", client.ClientId)

					h.Lock()
					delete(h.clients, client)
					client.conn.Close()
					// wait for all loops and write operations to be finished,
					// then it is safe to close the send channel
					client.Wait()
					close(client.Send)
					h.Unlock()
				} else {
					h.RUnlock()
				}
			}()

		case message := <-h.Broadcast:
			go func() {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					wg.Add(1)
					client.Add(1)
					go func(c *Client) {
						defer wg.Done()
						defer c.Done()
						c.Send <- message
					}(client)
				}
				wg.Wait()
				h.RUnlock()
			}()

		case events := <-h.BroadcastEvents:
			for _, event := range events {
				h.deliver(event)
				if event.Name != types.EventTypeError && event.TargetFilter == "" {
					h.History <- event
				}
			}

		case event := <-h.History:
			h.historyEnd.Value = event
			h.historyEnd = h.historyEnd.Next()
			if h.historyEnd == h.historyStart {
				h.historyStart = h.historyStart.Next()
			}
			if h.Persister != nil {
				err := h.Persister.StoreEvents([]*types.Event{event})
				if err != nil {
					globals.AppLogger.Error("could not persist event", "error", err)
				}
			}
		}
	}
}

// deliver sends one event to every client it is scoped to. Room events go to
// the room's members only, a target filter narrows further.
func (h *Hub) deliver(event *types.Event) {
	var prog *vm.Program
	if event.TargetFilter != "" {
		var err error
		prog, err = expr.Compile(event.TargetFilter, expr.Env(filter.Env{}))
		if err != nil {
			globals.AppLogger.Error("could not compile filter", "error", err)
			return
		}
	}
	go func() {
		var wg sync.WaitGroup
		h.RLock()
		for client := range h.clients {
			if event.RoomName != "" {
				user := client.User()
				if user == nil || !h.repo.IsMember(user.Id, event.RoomName) {
					continue
				}
			}
			if !client.RunFilterEvent(event, prog) {
				continue
			}
			if data, err := json.Marshal(types.WireEvent{Event: event}); err == nil {
				wg.Add(1)
				client.Add(1)
				go func(c *Client) {
					defer wg.Done()
					defer c.Done()
					c.Send <- data
				}(client)
			}
		}
		wg.Wait()
		h.RUnlock()
	}()
}

// GetEventHistory returns the in-memory tail of the event history.
func (h *Hub) GetEventHistory() []*types.Event {
	events := make([]*types.Event, 0)
	current := h.historyStart
	for ; current != h.historyEnd; current = current.Next() {
		events = append(events, current.Value.(*types.Event))
	}
	return events
}

// sweepPresence demotes idle users. Active users become inactive, inactive
// users go offline; both thresholds come from the presence configuration.
func (h *Hub) sweepPresence() {
	inactiveAfter := defaultInactiveAfter
	if h.Cfg.PresenceConfig.InactiveAfterMin > 0 {
		inactiveAfter = time.Duration(h.Cfg.PresenceConfig.InactiveAfterMin) * time.Minute
	}
	offlineAfter := defaultOfflineAfter
	if h.Cfg.PresenceConfig.OfflineAfterMin > 0 {
		offlineAfter = time.Duration(h.Cfg.PresenceConfig.OfflineAfterMin) * time.Minute
	}
	now := time.Now().UTC()
	changed := false
	for _, user := range h.repo.Users() {
		idle := now.Sub(user.LastActivity)
		switch user.Status {
		case types.StatusActive:
			if idle > inactiveAfter {
				user.Status = types.StatusInactive
				h.repo.UpdateUser(user)
				changed = true
			}
		case types.StatusInactive:
			if idle > offlineAfter {
				user.Status = types.StatusOffline
				user.ClientId = ""
				h.repo.UpdateUser(user)
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	if err := h.repo.CommitChanges(); err != nil {
		globals.AppLogger.Error("could not commit presence sweep", "error", err)
	}
}
