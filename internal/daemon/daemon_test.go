package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jroosing/resolverd/internal/config"
	"github.com/jroosing/resolverd/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.EnableTCP = false
	cfg.Upstream.Servers = []string{"9.9.9.9"}
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.RateLimit.GlobalQPS = 1000
	cfg.RateLimit.GlobalBurst = 1000
	cfg.RateLimit.PrefixQPS = 1000
	cfg.RateLimit.PrefixBurst = 1000
	cfg.RateLimit.IPQPS = 1000
	cfg.RateLimit.IPBurst = 1000
	cfg.RateLimit.MaxIPEntries = 1024
	cfg.RateLimit.MaxPrefixEntries = 256
	cfg.RateLimit.CleanupSeconds = 60
	return cfg
}

func TestRunWithContextStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	runner := server.NewRunner(nil)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- RunWithContext(ctx, runner, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err, "daemon should shut down cleanly on cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}
}

func TestRunWithContextBuildsSharedPolicyEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filtering.Enabled = true
	cfg.Filtering.BlacklistDomains = []string{"blocked.example."}
	runner := server.NewRunner(nil)
	require.Nil(t, runner.PolicyEngine(), "runner should start without an installed policy engine")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- RunWithContext(ctx, runner, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-errCh

	assert.NotNil(t, runner.PolicyEngine(), "RunWithContext should install a policy engine when none was set")
}
