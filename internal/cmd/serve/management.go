package serve

import (
	"context"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/voice-engine-studio/memory-service/internal/config"
)

// startManagementServer starts a dedicated HTTP server for management endpoints
// (health, ready, metrics). Plaintext is forced on when neither mode is enabled.
// Returns the bound address and a shutdown function.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	running, err := listenAndServe("management", cfg, handler)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Management server listening", "addr", running.Addr)
	return running.Addr, running.Close, nil
}
