package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/hubbub-chat/hubbub/auth"
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/globals"
	"github.com/hubbub-chat/hubbub/notify"
	"github.com/hubbub-chat/hubbub/persistence"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/hubbub-chat/hubbub/types"
	"github.com/hubbub-chat/hubbub/ws"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	globalConfig *config.Config
	hub          *ws.Hub
	repo         *repository.Memory
	service      *chat.Service
	notifier     notify.Notifier
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	var err error
	globalConfig, err = config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister != nil {
		defer persister.Close()
	}

	repo, err = repository.NewMemory(persister)
	if err != nil {
		panic(err)
	}
	service = chat.NewService(repo, auth.SHA256Hasher{})

	hub = ws.NewHub(globalConfig, repo, persister)
	notifier = notify.NewEventNotifier(hub, globalConfig.HelpText)
	go hub.Run()

	setupRoutes()
	// start HTTP server
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/chat", websocketHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

// preBindIdentity resolves an OIDC ID token to an existing identity. A user
// whose gravatar was set from the verified e-mail address is bound to this
// connection without going through the /nick claim flow.
func preBindIdentity(r *http.Request, clientId string) *types.User {
	vals := r.URL.Query()
	idToken := vals.Get("id_token")
	provider := vals.Get("provider")
	if idToken == "" || provider == "" {
		return nil
	}
	email, err := auth.Authenticate(idToken, provider, globalConfig)
	if err != nil || email == "" {
		return nil
	}
	hash := auth.GravatarHash(email)
	for _, user := range repo.Users() {
		if user.GravatarHash != "" && user.GravatarHash == hash {
			user.ClientId = clientId
			user.Status = types.StatusActive
			repo.UpdateUser(user)
			if err := repo.CommitChanges(); err != nil {
				globals.AppLogger.Error("could not commit identity binding", "error", err)
			}
			return user
		}
	}
	return nil
}

// Handle incoming websockets
func websocketHandler(w http.ResponseWriter, r *http.Request) {
	clientId := uuid.New().String()
	user := preBindIdentity(r, clientId)

	// Upgrade HTTP request to Websocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	// When this frame returns close the Websocket
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	c := ws.NewClient(hub, conn, clientId, user, service, notifier, doneChan)

	// Add to the hub
	c.Add(1)
	hub.Register <- c
	c.Wait()
	defer func() {
		hub.Unregister <- c
	}()
	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	// greet the new connection with a suggested guest label, then replay
	// the recent history
	label := goname.New(goname.FantasyMap).FirstLast()
	tags := map[string]string{"guest_label": label}
	if user != nil {
		tags["name"] = user.Name
	}
	welcome := types.NewEvent("", nil, "", types.EventTypeWelcome, tags)
	raw, err := json.Marshal(types.WireEvent{Event: welcome})
	if err != nil {
		globals.AppLogger.Error("could not marshal welcome event", "error", err)
		return
	}
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func(wg *sync.WaitGroup) {
		defer wg.Done()
		c.Add(1)
		defer c.Done()
		c.Send <- raw
	}(wg)
	go c.SendEventHistory(hub.GetEventHistory(), wg)
	wg.Wait()
	<-doneChan
	globals.AppLogger.Info("doneChan closed, exiting ws handler")
}
