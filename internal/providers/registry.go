// Package providers resolves a "provider/model" identifier into a provider
// id and reports whether that provider is enabled, grounded on
// original_source/config/settings.py's is_provider_enabled /
// get_provider_status.
package providers

import (
	"os"
	"strconv"
	"strings"

	"github.com/chainforge-ai/chainforge/internal/config"
)

// Status describes one provider's availability for the /health endpoint.
type Status struct {
	Available bool
	Reason    string // empty when Available
}

// Registry resolves provider identifiers and reports their availability
// based on configured env vars. It holds no mutable state after
// construction; environment variables are read at construction time and the
// result is frozen, matching "configuration is read-only after startup."
type Registry struct {
	providers map[string]config.ProviderConfig
	status    map[string]Status
}

// New builds a Registry by snapshotting the current environment for every
// configured provider.
func New(cfg map[string]config.ProviderConfig) *Registry {
	r := &Registry{
		providers: cfg,
		status:    make(map[string]Status, len(cfg)),
	}
	for name, pc := range cfg {
		r.status[name] = computeStatus(pc)
	}
	return r
}

func computeStatus(pc config.ProviderConfig) Status {
	if pc.DisableEnvVar != "" && isTruthy(os.Getenv(pc.DisableEnvVar)) {
		return Status{Available: false, Reason: "provider_disabled"}
	}
	if pc.EnvVar != "" && os.Getenv(pc.EnvVar) == "" {
		return Status{Available: false, Reason: "missing_credential"}
	}
	return Status{Available: true}
}

func isTruthy(v string) bool {
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	}
	return false
}

// Split parses "provider/model" into its two parts on the first slash.
func Split(model string) (provider, name string, ok bool) {
	idx := strings.IndexByte(model, '/')
	if idx < 0 {
		return "", "", false
	}
	return model[:idx], model[idx+1:], true
}

// Status reports the availability of provider (unknown providers report
// unavailable with reason "provider_disabled").
func (r *Registry) Status(provider string) Status {
	if s, ok := r.status[provider]; ok {
		return s
	}
	return Status{Available: false, Reason: "provider_disabled"}
}

// Enabled is a convenience boolean form of Status.
func (r *Registry) Enabled(provider string) bool {
	return r.Status(provider).Available
}

// All returns a snapshot of every configured provider's status, keyed by
// provider id, for the /health endpoint.
func (r *Registry) All() map[string]Status {
	out := make(map[string]Status, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}

// AvailableCount returns how many configured providers are currently
// available, used by the /health degraded-vs-healthy threshold.
func (r *Registry) AvailableCount() int {
	n := 0
	for _, s := range r.status {
		if s.Available {
			n++
		}
	}
	return n
}
