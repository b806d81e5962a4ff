// Package daemon wires the layer pipeline, worker shards, and UDP/TCP
// frontends into the async resolution path that supersedes
// internal/server's synchronous QueryHandler/UDPServer/TCPServer trio. It
// sits above internal/server and internal/frontend (which already imports
// internal/server for RateLimiter/DNSStats/wire helpers), so this is the
// one place that may depend on both without creating an import cycle.
package daemon

import (
	"context"
	"net"
	"runtime"
	"strconv"

	"github.com/jroosing/resolverd/internal/cache"
	"github.com/jroosing/resolverd/internal/config"
	"github.com/jroosing/resolverd/internal/frontend"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/nsrep"
	"github.com/jroosing/resolverd/internal/resolvers"
	"github.com/jroosing/resolverd/internal/server"
	"github.com/jroosing/resolverd/internal/worker"
)

// rootServerHints are the IANA root server IPv4 addresses, compiled in the
// same way knot-resolver ships a root.hints file: the iterator primes its
// very first zone cut from these when a query's own zone cut is still
// empty.
var rootServerHints = []net.IP{
	net.ParseIP("198.41.0.4"),     // a.root-servers.net
	net.ParseIP("199.9.14.201"),   // b.root-servers.net
	net.ParseIP("192.33.4.12"),    // c.root-servers.net
	net.ParseIP("199.7.91.13"),    // d.root-servers.net
	net.ParseIP("192.203.230.10"), // e.root-servers.net
	net.ParseIP("192.5.5.241"),    // f.root-servers.net
	net.ParseIP("192.112.36.4"),   // g.root-servers.net
	net.ParseIP("198.97.190.53"),  // h.root-servers.net
	net.ParseIP("192.36.148.17"),  // i.root-servers.net
	net.ParseIP("192.58.128.30"),  // j.root-servers.net
	net.ParseIP("193.0.14.129"),   // k.root-servers.net
	net.ParseIP("199.7.83.42"),    // l.root-servers.net
	net.ParseIP("202.12.27.33"),   // m.root-servers.net
}

// RunWithContext starts the resolver on the layer/worker/frontend pipeline:
// hints, then policy, then zone overrides, then the persistent cache, then
// full iterative resolution and validation, each a pipeline stage ahead of
// the next. One
// Worker shard runs per CPU, each paired 1:1 with a frontend SO_REUSEPORT
// socket, sharing one cache handle and one nameserver reputation cache
// across shards the way bbolt and internal/nsrep's own locking already
// allow.
//
// r supplies the logger, policy engine, and DNSStats collector the rest of
// the process (the management API, in particular) already shares; ctx
// governs the whole resolver's lifetime and the caller owns signal
// handling.
func RunWithContext(ctx context.Context, r *server.Runner, cfg *config.Config) error {
	logger := r.Logger()

	desiredProcs := r.ConfigureRuntime(cfg)
	maxConc := r.CalculateMaxConcurrency(cfg, desiredProcs)

	zones := server.LoadZones(cfg, logger)
	var zonesResolver *resolvers.ZoneResolver
	if len(zones) > 0 {
		zonesResolver = resolvers.NewZoneResolver(zones)
	}

	var hintsResolver *resolvers.CustomDNSResolver
	if len(cfg.CustomDNS.Hosts) > 0 || len(cfg.CustomDNS.CNAMEs) > 0 {
		hr, err := resolvers.NewCustomDNSResolver(cfg.CustomDNS.Hosts, cfg.CustomDNS.CNAMEs)
		if err != nil {
			if logger != nil {
				logger.Warn("custom DNS hosts/cnames rejected", "err", err)
			}
		} else {
			hintsResolver = hr
		}
	}

	policy := r.PolicyEngine()
	if policy == nil {
		policy = server.BuildPolicyEngine(cfg, logger)
		r.SetPolicyEngine(policy)
	}

	recordCache, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		if logger != nil {
			logger.Warn("cache unavailable, running without it", "path", cfg.Cache.Path, "err", err)
		}
		recordCache = nil
	} else {
		defer recordCache.Close()
	}

	reputations := nsrep.New()
	pipeline := layer.New(
		layer.NewHintsLayer(hintsResolver),
		layer.NewPolicyLayer(policy),
		layer.NewZonesLayer(zonesResolver),
		layer.NewCacheReaderLayer(recordCache, nil),
		layer.NewIterateLayer(rootServerHints, reputations),
		layer.NewValidateLayer(),
	)

	shardCount := runtime.NumCPU()
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*worker.Worker, shardCount)
	for i := range shards {
		shards[i] = worker.New(pipeline, nil, reputations, func(completed uint64) {
			if logger != nil {
				logger.Info("worker recycle tick", "completed", completed)
			}
		})
	}
	for _, w := range shards {
		go w.Run(ctx)
	}

	limiter := server.NewRateLimiter(server.RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if logger != nil {
		logger.Info("dns listening",
			"addr", addr,
			"udp", true,
			"tcp", cfg.Server.EnableTCP,
			"worker_shards", shardCount,
			"max_concurrency", maxConc,
			"cache_path", cfg.Cache.Path,
		)
	}

	stats := r.DNSStats()
	udp := &frontend.UDPFrontend{Logger: logger, Workers: shards, Limiter: limiter, Stats: stats}
	var tcp *frontend.TCPFrontend
	if cfg.Server.EnableTCP {
		tcp = &frontend.TCPFrontend{Logger: logger, Workers: shards, Stats: stats}
	}

	// UDPFrontend.Run and TCPFrontend.Run each block until ctx is cancelled
	// and then perform their own graceful Stop before returning, so running
	// them concurrently and waiting for both is all the shutdown
	// orchestration needed here.
	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	<-ctx.Done()
	waitFor := 1
	if tcp != nil {
		waitFor = 2
	}
	var firstErr error
	for range waitFor {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
