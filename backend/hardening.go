package backend

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"
)

// HardeningScriptVersion is bumped whenever hardening.js changes behaviour.
const HardeningScriptVersion = 1

//go:embed hardening.js
var hardeningTemplate string

// SecurityScript is the rendered hardening payload
type SecurityScript string

// Shortcut is a key combination the hardening script cancels. Key is
// compared against KeyboardEvent.key upper-cased.
type Shortcut struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
}

func (s Shortcut) String() string {
	var parts []string
	if s.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if s.Shift {
		parts = append(parts, "Shift")
	}
	return strings.Join(append(parts, s.Key), "+")
}

// BlockedShortcuts covers devtools, console, element inspection and view-source.
var BlockedShortcuts = []Shortcut{
	{Key: "F12"},
	{Key: "I", Ctrl: true, Shift: true},
	{Key: "J", Ctrl: true, Shift: true},
	{Key: "C", Ctrl: true, Shift: true},
	{Key: "U", Ctrl: true},
}

// KeyEvent is the subset of a DOM KeyboardEvent the script inspects
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
}

// ShortcutBlocked reports whether the hardening script cancels ev. It uses
// the same rule as hardening.js: exact match on key, Ctrl and Shift.
func ShortcutBlocked(ev KeyEvent) bool {
	key := strings.ToUpper(ev.Key)
	for _, s := range BlockedShortcuts {
		if key == s.Key && ev.Ctrl == s.Ctrl && ev.Shift == s.Shift {
			return true
		}
	}
	return false
}

var buildHardeningScript = sync.OnceValue(func() SecurityScript {
	shortcuts, err := json.Marshal(BlockedShortcuts)
	if err != nil {
		panic(fmt.Sprintf("marshal shortcuts: %v", err))
	}

	tmpl := template.Must(template.New("hardening").Parse(hardeningTemplate))
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Version   int
		Shortcuts string
	}{
		Version:   HardeningScriptVersion,
		Shortcuts: string(shortcuts),
	})
	if err != nil {
		panic(fmt.Sprintf("render hardening script: %v", err))
	}
	return SecurityScript(buf.String())
})

// BuildHardeningScript returns the hardening payload. Pure and deterministic.
func BuildHardeningScript() SecurityScript {
	return buildHardeningScript()
}

// Injector submits the hardening script into a window's surface
type Injector struct {
	mode     BuildMode
	log      *slog.Logger
	mu       sync.Mutex
	injected map[*WindowHandle]bool
}

func NewInjector(mode BuildMode, log *slog.Logger) *Injector {
	return &Injector{
		mode:     mode,
		log:      log.With("component", "hardening"),
		injected: make(map[*WindowHandle]bool),
	}
}

// Inject evaluates script in h's surface once. It does nothing in debug
// builds or for windows that are not shown. Failures are logged and never
// returned: hardening must not block the window.
func (i *Injector) Inject(h *WindowHandle, script SecurityScript) (ok bool) {
	if i.mode != BuildRelease {
		i.log.Debug("skipping hardening in debug build")
		return false
	}
	if h == nil {
		i.log.Warn("no window to harden")
		return false
	}
	if stage := h.Stage(); stage != StageShown {
		i.log.Warn("window not shown, skipping hardening", "id", h.ID(), "stage", stage.String())
		return false
	}

	i.mu.Lock()
	if i.injected[h] {
		i.mu.Unlock()
		i.log.Debug("hardening already injected", "id", h.ID())
		return false
	}
	i.injected[h] = true
	i.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			i.log.Error("hardening injection panicked", "id", h.ID(), "panic", r)
			ok = false
		}
	}()

	if err := h.win.EvaluateScript(string(script)); err != nil {
		i.log.Error("hardening injection failed", "id", h.ID(), "error", err)
		return false
	}

	i.log.Info("hardening injected", "id", h.ID(), "version", HardeningScriptVersion)
	return true
}
