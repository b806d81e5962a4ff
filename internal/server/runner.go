package server

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jroosing/resolverd/internal/config"
	"github.com/jroosing/resolverd/internal/filtering"
	"github.com/jroosing/resolverd/internal/zone"
)

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger
	policy *filtering.PolicyEngine
	stats  *DNSStats
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger, stats: NewDNSStats()}
}

// SetPolicyEngine installs a policy engine built (and owned) outside the
// runner — main wires the same instance into the management API so the two
// surfaces agree on what is blocked without either rebuilding it.
func (r *Runner) SetPolicyEngine(p *filtering.PolicyEngine) {
	r.policy = p
}

// PolicyEngine returns the runner's installed policy engine, or nil if none
// was set. Used by internal/daemon to thread the same instance into the
// layer pipeline it assembles.
func (r *Runner) PolicyEngine() *filtering.PolicyEngine {
	return r.policy
}

// DNSStats returns the runner's query/latency counters. internal/daemon
// wires the same instance into every frontend it starts, so a snapshot
// taken here always reflects live traffic.
func (r *Runner) DNSStats() *DNSStats {
	return r.stats
}

// Logger returns the runner's logger, for callers (internal/daemon) that
// assemble components alongside this Runner rather than through it.
func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

// BuildPolicyEngine constructs a filtering.PolicyEngine from cfg, whether or
// not filtering is enabled — an engine with Enabled=false still exists so
// callers (the DNS path and the management API) share one instance instead
// of each carrying their own half of the configuration.
func BuildPolicyEngine(cfg *config.Config, logger *slog.Logger) *filtering.PolicyEngine {
	blocklists := make([]filtering.BlocklistURL, 0, len(cfg.Filtering.Blocklists))
	for _, bl := range cfg.Filtering.Blocklists {
		format := filtering.FormatAuto
		switch bl.Format {
		case "adblock":
			format = filtering.FormatAdblock
		case "hosts":
			format = filtering.FormatHosts
		case "domains":
			format = filtering.FormatDomains
		}
		blocklists = append(blocklists, filtering.BlocklistURL{
			Name:   bl.Name,
			URL:    bl.URL,
			Format: format,
		})
	}

	refreshInterval := 24 * time.Hour
	if cfg.Filtering.RefreshInterval != "" {
		if d, err := time.ParseDuration(cfg.Filtering.RefreshInterval); err == nil {
			refreshInterval = d
		}
	}

	engine := filtering.NewPolicyEngine(filtering.PolicyEngineConfig{
		Enabled:          cfg.Filtering.Enabled,
		BlockAction:      filtering.ActionBlock,
		LogBlocked:       cfg.Filtering.LogBlocked,
		LogAllowed:       cfg.Filtering.LogAllowed,
		WhitelistDomains: cfg.Filtering.WhitelistDomains,
		BlacklistDomains: cfg.Filtering.BlacklistDomains,
		BlocklistURLs:    blocklists,
		RefreshInterval:  refreshInterval,
	})
	if logger != nil {
		logger.Info("filtering policy built",
			"enabled", cfg.Filtering.Enabled,
			"whitelist_count", len(cfg.Filtering.WhitelistDomains),
			"blacklist_count", len(cfg.Filtering.BlacklistDomains),
			"blocklists", len(cfg.Filtering.Blocklists),
		)
	}
	return engine
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
// ConfigureRuntime is the exported form of configureRuntime, for
// internal/daemon's RunWithContext path.
func (r *Runner) ConfigureRuntime(cfg *config.Config) int {
	return r.configureRuntime(cfg)
}

// CalculateMaxConcurrency is the exported form of calculateMaxConcurrency.
func (r *Runner) CalculateMaxConcurrency(cfg *config.Config, procs int) int {
	return r.calculateMaxConcurrency(cfg, procs)
}

func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent request handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	maxConc := cfg.Server.MaxConcurrency
	if maxConc <= 0 {
		c := procs
		if c <= 0 {
			c = 1
		}
		maxConc = c * 256
		if maxConc > 2048 {
			maxConc = 2048
		}
		if maxConc < 1 {
			maxConc = 1
		}
	}
	return maxConc
}

// LoadZones discovers and loads zone files from the configured location.
// Exported so internal/daemon can build the same zone set without its own
// copy of the discovery logic.
func LoadZones(cfg *config.Config, logger *slog.Logger) []*zone.Zone {
	zoneFiles := discoverZoneFiles(cfg.Zones.Directory, cfg.Zones.Files)
	zones := make([]*zone.Zone, 0, len(zoneFiles))

	for _, p := range zoneFiles {
		z, err := zone.LoadFile(p)
		if err != nil {
			if logger != nil {
				logger.Warn("failed to load zone file", "path", p, "err", err)
			}
			continue
		}
		zones = append(zones, z)
	}

	if len(zones) > 0 && logger != nil {
		logger.Info("zones enabled", "count", len(zones), "files", zoneFiles)
	}
	return zones
}

// discoverZoneFiles returns zone files to load, either from explicit config
// or by scanning the zones directory.
func discoverZoneFiles(zonesDir string, explicit []string) []string {
	// Use explicit list if provided
	if len(explicit) > 0 {
		out := make([]string, 0, len(explicit))
		for _, p := range explicit {
			p = filepath.Clean(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	// Otherwise scan directory
	if zonesDir == "" {
		zonesDir = "zones"
	}
	entries, err := os.ReadDir(zonesDir)
	if err != nil {
		return nil
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" {
			continue
		}
		files = append(files, filepath.Join(zonesDir, name))
	}
	sort.Strings(files)
	return files
}
