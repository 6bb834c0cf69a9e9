//go:build pact
// +build pact

package consumer_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	pactconsumer "github.com/pact-foundation/pact-go/v2/consumer"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
)

var jsonContentType = matchers.Regex("application/json", "application\\/json(?:;\\s?charset=utf-8)?")

// newRemote points a single-attempt resilient client at the pact mock server.
func newRemote(t *testing.T, name string, config pactconsumer.MockServerConfig) *resilient.Client {
	t.Helper()
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	cfg := resilient.DefaultConfig(name, fmt.Sprintf("http://%s:%d", host, config.Port))
	cfg.MaxAttempts = 1
	cfg.Timeout = 5 * time.Second
	transport := &http.Transport{TLSClientConfig: config.TLSConfig}
	remote, err := resilient.New(cfg, resilient.WithTransport(&http.Client{Transport: transport}))
	require.NoError(t, err)
	return remote
}
