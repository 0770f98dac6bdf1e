package pluginhost

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
)

// fakePlugin is an in-process stand-in for a subprocess-backed plugin,
// letting the state machine and hook dispatch be tested without spawning
// real processes.
type fakePlugin struct {
	mu          sync.Mutex
	hooks       []HookName
	initErr     error
	destroyErr  error
	dispatchErr error
	initDelay   time.Duration
	dispatched  []HookName
}

func (f *fakePlugin) Init(ctx context.Context) error {
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakePlugin) Destroy(ctx context.Context) error { return f.destroyErr }

func (f *fakePlugin) SupportsHook(h HookName) bool {
	for _, supported := range f.hooks {
		if supported == h {
			return true
		}
	}
	return false
}

func (f *fakePlugin) Dispatch(ctx context.Context, h HookName, payload any) error {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, h)
	f.mu.Unlock()
	return f.dispatchErr
}

func newTestHost(t *testing.T, plugins map[string]*fakePlugin) *Host {
	t.Helper()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	factory := func(m Manifest) (Plugin, error) { return plugins[m.Name], nil }
	return New("1.2.0", factory, log)
}

func TestRegisterInitializeActivatesPlugin(t *testing.T) {
	fp := &fakePlugin{hooks: []HookName{HookOnObservation}}
	h := newTestHost(t, map[string]*fakePlugin{"demo": fp})

	if err := h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if state, _ := h.State("demo"); state != StateRegistered {
		t.Fatalf("expected registered, got %s", state)
	}

	if err := h.Initialize(context.Background(), "demo"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if state, _ := h.State("demo"); state != StateActive {
		t.Fatalf("expected active, got %s", state)
	}
}

func TestRegisterRejectsMissingMinVersion(t *testing.T) {
	fp := &fakePlugin{}
	h := newTestHost(t, map[string]*fakePlugin{"demo": fp})

	err := h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo", MinVersion: "2.0.0"})
	if err == nil {
		t.Fatal("expected Register to reject a host version below minVersion")
	}
}

func TestInitFailureTransitionsToError(t *testing.T) {
	fp := &fakePlugin{initErr: errors.New("boom")}
	h := newTestHost(t, map[string]*fakePlugin{"demo": fp})
	h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo"})

	if err := h.Initialize(context.Background(), "demo"); err == nil {
		t.Fatal("expected Initialize to propagate the init error")
	}
	if state, _ := h.State("demo"); state != StateError {
		t.Fatalf("expected error state, got %s", state)
	}
}

func TestInitTimeoutTransitionsToError(t *testing.T) {
	fp := &fakePlugin{initDelay: 50 * time.Millisecond}
	h := newTestHost(t, map[string]*fakePlugin{"demo": fp})
	h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := h.Initialize(ctx, "demo"); err == nil {
		t.Fatal("expected Initialize to time out")
	}
	if state, _ := h.State("demo"); state != StateError {
		t.Fatalf("expected error state after timeout, got %s", state)
	}
}

func TestEmitIsolatesFailingPlugins(t *testing.T) {
	good := &fakePlugin{hooks: []HookName{HookOnObservation}}
	bad := &fakePlugin{hooks: []HookName{HookOnObservation}, dispatchErr: errors.New("boom")}
	h := newTestHost(t, map[string]*fakePlugin{"good": good, "bad": bad})

	h.Register(Manifest{Name: "good", Version: "1.0.0", Path: "/bin/good", Hooks: []HookName{HookOnObservation}})
	h.Register(Manifest{Name: "bad", Version: "1.0.0", Path: "/bin/bad", Hooks: []HookName{HookOnObservation}})
	h.Initialize(context.Background(), "good")
	h.Initialize(context.Background(), "bad")

	h.Emit(context.Background(), HookOnObservation, map[string]string{"id": "1"})

	if len(good.dispatched) != 1 {
		t.Errorf("expected the good plugin to receive the hook, got %d calls", len(good.dispatched))
	}
	if len(bad.dispatched) != 1 {
		t.Errorf("expected the failing plugin to still receive the hook, got %d calls", len(bad.dispatched))
	}
}

func TestEmitSkipsPluginsNotSupportingHook(t *testing.T) {
	fp := &fakePlugin{hooks: []HookName{HookOnSummary}}
	h := newTestHost(t, map[string]*fakePlugin{"demo": fp})
	h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo", Hooks: []HookName{HookOnSummary}})
	h.Initialize(context.Background(), "demo")

	h.Emit(context.Background(), HookOnObservation, nil)

	if len(fp.dispatched) != 0 {
		t.Errorf("expected no dispatch for an unsupported hook, got %d", len(fp.dispatched))
	}
}

func TestReloadReinitializesFromOrigin(t *testing.T) {
	fp1 := &fakePlugin{hooks: []HookName{HookOnObservation}}
	fp2 := &fakePlugin{hooks: []HookName{HookOnObservation}}
	calls := 0
	log := logging.New("test", logging.LevelSilent, io.Discard)
	factory := func(m Manifest) (Plugin, error) {
		calls++
		if calls == 1 {
			return fp1, nil
		}
		return fp2, nil
	}
	h := New("1.0.0", factory, log)

	h.Register(Manifest{Name: "demo", Version: "1.0.0", Path: "/bin/demo"})
	h.Initialize(context.Background(), "demo")

	if err := h.Reload(context.Background(), "demo"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if state, _ := h.State("demo"); state != StateActive {
		t.Fatalf("expected active after reload, got %s", state)
	}
	if calls != 2 {
		t.Fatalf("expected the factory to be called twice (register + reload), got %d", calls)
	}
}

func TestCompareVersionsOrdersMajorMinorPatch(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2.0", "1.3.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2.3", "1.2.2", 1},
	}
	for _, c := range cases {
		if got := compareVersions(c.a, c.b); got != c.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
