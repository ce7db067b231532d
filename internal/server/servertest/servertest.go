// Package servertest starts in-process relays for tests.
package servertest

import (
	"testing"

	"github.com/PolarWolf314/enseal/internal/configs"
	"github.com/PolarWolf314/enseal/internal/server"
)

// Start runs a relay on a loopback port with rate limiting and logging
// disabled. mutate may adjust the server section before start. The relay
// is shut down when the test ends.
func Start(t testing.TB, mutate func(*configs.Server)) *server.Server {
	t.Helper()
	cfg := &configs.ServerConfig{
		Server:  &configs.Server{Address: "127.0.0.1:0", RateLimitPerMinute: -1},
		Logging: &configs.Logging{Disable: true},
		Metrics: &configs.Metrics{},
	}
	if mutate != nil {
		mutate(cfg.Server)
	}
	s, err := server.New(cfg)
	if err != nil {
		t.Fatalf("failed to start relay: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}
