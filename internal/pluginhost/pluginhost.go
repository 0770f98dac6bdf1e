// Package pluginhost implements the plugin lifecycle state machine and
// isolated, timeout-bounded hook dispatch. A plugin is a subprocess
// speaking a small framed JSON-RPC protocol over stdio; the host tracks
// each one in a mutex-guarded registry and never lets a hook failure
// escape to the caller.
package pluginhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
)

// State is a plugin's position in its lifecycle state machine.
type State string

const (
	StateRegistered   State = "registered"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateDestroyed    State = "destroyed"
	StateError        State = "error"
)

// HookName identifies one of the four narrow event hooks a plugin may
// implement.
type HookName string

const (
	HookOnObservation  HookName = "onObservation"
	HookOnSummary      HookName = "onSummary"
	HookOnSessionStart HookName = "onSessionStart"
	HookOnSessionEnd   HookName = "onSessionEnd"
)

// Timeouts enforced around every lifecycle transition and hook call.
const (
	InitTimeout    = 5 * time.Second
	DestroyTimeout = 5 * time.Second
	HookTimeout    = 10 * time.Second
)

// Manifest describes a discovered plugin before it is instantiated.
type Manifest struct {
	Name       string
	Version    string
	MinVersion string
	Path       string
	Hooks      []HookName
	Enabled    bool
}

// Plugin is the contract a registered instance implements. processPlugin
// (process.go) is the production implementation; tests may supply a fake.
type Plugin interface {
	Init(ctx context.Context) error
	Destroy(ctx context.Context) error
	SupportsHook(h HookName) bool
	Dispatch(ctx context.Context, h HookName, payload any) error
}

// Factory instantiates a Plugin from its manifest. Called once at
// registration and again on hot reload.
type Factory func(Manifest) (Plugin, error)

type entry struct {
	mu       sync.Mutex
	manifest Manifest
	plugin   Plugin
	state    State
	lastErr  error
}

// Host owns the plugin registry and serializes state transitions per
// plugin.
type Host struct {
	hostVersion string
	newPlugin   Factory
	log         *logging.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// New builds a Host. hostVersion gates minVersion checks at registration.
func New(hostVersion string, newPlugin Factory, log *logging.Logger) *Host {
	return &Host{
		hostVersion: hostVersion,
		newPlugin:   newPlugin,
		log:         log,
		entries:     make(map[string]*entry),
	}
}

// Register validates a manifest, instantiates its plugin via the factory,
// and stores it in state registered. It does not call Init.
func (h *Host) Register(m Manifest) error {
	if err := validate(m, h.hostVersion); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.entries[m.Name]; exists {
		return fmt.Errorf("plugin %s is already registered", m.Name)
	}

	p, err := h.newPlugin(m)
	if err != nil {
		return fmt.Errorf("instantiate plugin %s: %w", m.Name, err)
	}
	h.entries[m.Name] = &entry{manifest: m, plugin: p, state: StateRegistered}
	return nil
}

func validate(m Manifest, hostVersion string) error {
	if m.Name == "" {
		return fmt.Errorf("plugin manifest missing name")
	}
	if m.Version == "" {
		return fmt.Errorf("plugin %s missing version", m.Name)
	}
	if m.Path == "" {
		return fmt.Errorf("plugin %s missing entry path", m.Name)
	}
	if m.MinVersion != "" && compareVersions(hostVersion, m.MinVersion) < 0 {
		return fmt.Errorf("plugin %s requires host >= %s, have %s", m.Name, m.MinVersion, hostVersion)
	}
	return nil
}

// compareVersions does a simple major.minor.patch ordering comparison,
// returning -1, 0, or 1. Missing or non-numeric components compare as 0.
func compareVersions(a, b string) int {
	pa, pb := splitVersion(a), splitVersion(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) [3]int {
	var out [3]int
	part, idx := 0, 0
	for i := 0; i <= len(v) && idx < 3; i++ {
		if i == len(v) || v[i] == '.' {
			out[idx] = part
			part, idx = 0, idx+1
			continue
		}
		if v[i] < '0' || v[i] > '9' {
			return out
		}
		part = part*10 + int(v[i]-'0')
	}
	return out
}

func (h *Host) get(name string) (*entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	return e, ok
}

// Initialize transitions a registered plugin to active, bounded by
// InitTimeout. A timed-out or erroring init leaves the plugin in error.
func (h *Host) Initialize(ctx context.Context, name string) error {
	e, ok := h.get(name)
	if !ok {
		return fmt.Errorf("plugin %s not registered", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRegistered {
		return fmt.Errorf("plugin %s not in registered state (currently %s)", name, e.state)
	}
	e.state = StateInitializing

	ictx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()
	if err := e.plugin.Init(ictx); err != nil {
		e.state = StateError
		e.lastErr = err
		if h.log != nil {
			h.log.Warn().Str("plugin", name).Err(err).Msg("plugin init failed")
		}
		return err
	}
	e.state = StateActive
	return nil
}

// Destroy transitions an active plugin to destroyed, bounded by
// DestroyTimeout. Failure leaves the plugin in error.
func (h *Host) Destroy(ctx context.Context, name string) error {
	e, ok := h.get(name)
	if !ok {
		return fmt.Errorf("plugin %s not registered", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return fmt.Errorf("plugin %s not active (currently %s)", name, e.state)
	}

	dctx, cancel := context.WithTimeout(ctx, DestroyTimeout)
	defer cancel()
	if err := e.plugin.Destroy(dctx); err != nil {
		e.state = StateError
		e.lastErr = err
		if h.log != nil {
			h.log.Warn().Str("plugin", name).Err(err).Msg("plugin destroy failed")
		}
		return err
	}
	e.state = StateDestroyed
	return nil
}

// Reload hot-reloads a plugin: destroy (if active) → unregister → re-init
// from its recorded origin path.
func (h *Host) Reload(ctx context.Context, name string) error {
	e, ok := h.get(name)
	if !ok {
		return fmt.Errorf("plugin %s not registered", name)
	}

	e.mu.Lock()
	manifest := e.manifest
	state := e.state
	e.mu.Unlock()

	if state == StateActive {
		if err := h.Destroy(ctx, name); err != nil {
			return fmt.Errorf("reload %s: destroy failed: %w", name, err)
		}
	}

	h.mu.Lock()
	delete(h.entries, name)
	h.mu.Unlock()

	if err := h.Register(manifest); err != nil {
		return fmt.Errorf("reload %s: re-register failed: %w", name, err)
	}
	return h.Initialize(ctx, name)
}

// State reports a plugin's current lifecycle state.
func (h *Host) State(name string) (State, bool) {
	e, ok := h.get(name)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Emit concurrently dispatches hookName to every active plugin implementing
// it, each bounded by HookTimeout. A throwing or timed-out hook is logged
// and never affects its siblings or the caller.
func (h *Host) Emit(ctx context.Context, hookName HookName, payload any) {
	h.mu.RLock()
	targets := make([]*entry, 0, len(h.entries))
	for _, e := range h.entries {
		targets = append(targets, e)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range targets {
		e.mu.Lock()
		active := e.state == StateActive && e.plugin.SupportsHook(hookName)
		name := e.manifest.Name
		plugin := e.plugin
		e.mu.Unlock()
		if !active {
			continue
		}

		wg.Add(1)
		go func(name string, p Plugin) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, HookTimeout)
			defer cancel()
			if err := p.Dispatch(hctx, hookName, payload); err != nil && h.log != nil {
				h.log.Warn().Str("plugin", name).Str("hook", string(hookName)).Err(err).Msg("plugin hook failed")
			}
		}(name, plugin)
	}
	wg.Wait()
}

// Names returns every registered plugin name.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.entries))
	for name := range h.entries {
		names = append(names, name)
	}
	return names
}
