package ws

import (
	"testing"
	"time"

	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The connection handler does Add(1), registers, then blocks in Wait until
// the hub has picked the client up. The Register case must release that wait
// or no connection ever gets its loops started.
func TestRegisterReleasesHandler(t *testing.T) {
	repo, err := repository.NewMemory(nil)
	require.NoError(t, err)
	hub := NewHub(&config.Config{}, repo, nil)
	go hub.Run()

	c := testClient(hub, "client-1", nil)
	c.Add(1)
	hub.Register <- c

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registration never released the connection handler")
	}
	assert.Equal(t, 1, hub.NoClients())
}
