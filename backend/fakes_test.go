package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/services/notifications"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWindow struct {
	mu        sync.Mutex
	calls     []string
	scripts   []string
	showErr   error
	showHook  func()
	evalErr   error
	evalPanic bool
	onClose   []func()
}

func (w *fakeWindow) Show() error {
	w.mu.Lock()
	w.calls = append(w.calls, "show")
	hook, err := w.showHook, w.showErr
	w.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (w *fakeWindow) EvaluateScript(js string) error {
	w.mu.Lock()
	w.calls = append(w.calls, "eval")
	w.scripts = append(w.scripts, js)
	panicking, err := w.evalPanic, w.evalErr
	w.mu.Unlock()
	if panicking {
		panic("surface gone")
	}
	return err
}

func (w *fakeWindow) SubscribeClose(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClose = append(w.onClose, fn)
}

// Close behaves like the real host: closing fires the close hooks.
func (w *fakeWindow) Close() {
	w.mu.Lock()
	w.calls = append(w.calls, "close")
	w.mu.Unlock()
	w.userClose()
}

// userClose simulates the user clicking the window's close button.
func (w *fakeWindow) userClose() {
	w.mu.Lock()
	fns := make([]func(), len(w.onClose))
	copy(fns, w.onClose)
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (w *fakeWindow) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func (w *fakeWindow) count(call string) int {
	n := 0
	for _, c := range w.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

type emitted struct {
	name string
	data any
}

type fakeHost struct {
	mu        sync.Mutex
	window    *fakeWindow
	createErr error
	failOn    string
	specs     []WindowSpec
	services  []string
	instances []any
	startup   []func()
	events    []emitted
	quit      chan struct{}
	quitOnce  sync.Once
	started   chan struct{}
	runErr    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		window:  &fakeWindow{},
		quit:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (h *fakeHost) CreateWindow(spec WindowSpec) (HostWindow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.specs = append(h.specs, spec)
	if h.createErr != nil {
		return nil, h.createErr
	}
	return h.window, nil
}

func (h *fakeHost) RegisterService(name string, svc application.Service) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == h.failOn {
		return errors.New("service rejected")
	}
	h.services = append(h.services, name)
	h.instances = append(h.instances, svc.Instance())
	return nil
}

func (h *fakeHost) OnStartup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startup = append(h.startup, fn)
}

func (h *fakeHost) Emit(name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, emitted{name: name, data: data})
}

// Run dispatches startup callbacks then blocks like an event loop until Quit.
func (h *fakeHost) Run() error {
	h.mu.Lock()
	fns := append([]func(){}, h.startup...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	close(h.started)
	<-h.quit
	return h.runErr
}

func (h *fakeHost) Quit() {
	h.quitOnce.Do(func() { close(h.quit) })
}

func (h *fakeHost) Running() bool {
	select {
	case <-h.quit:
		return false
	default:
		return true
	}
}

func (h *fakeHost) Events(name string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, e := range h.events {
		if e.name == name {
			out = append(out, e.data)
		}
	}
	return out
}

type fakeUpdater struct {
	mu         sync.Mutex
	info       *UpdateInfo
	checkErr   error
	installErr error
	checkPanic bool
	// blockCheck makes Check wait for ctx to end.
	blockCheck bool
	progress   []UpdateProgress
	checks     int
	installs   []UpdateInfo
	readyCalls int
}

func (u *fakeUpdater) Check(ctx context.Context) (*UpdateInfo, error) {
	u.mu.Lock()
	u.checks++
	info, err, block, panicking := u.info, u.checkErr, u.blockCheck, u.checkPanic
	u.mu.Unlock()

	if panicking {
		panic("malformed response")
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return info, err
}

func (u *fakeUpdater) DownloadAndInstall(ctx context.Context, info UpdateInfo, onProgress func(UpdateProgress), onReady func()) error {
	u.mu.Lock()
	u.installs = append(u.installs, info)
	progress := append([]UpdateProgress(nil), u.progress...)
	err := u.installErr
	u.mu.Unlock()

	for _, p := range progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if err != nil {
		return err
	}
	if onReady != nil {
		u.mu.Lock()
		u.readyCalls++
		u.mu.Unlock()
		onReady()
	}
	return nil
}

func (u *fakeUpdater) Checks() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.checks
}

func (u *fakeUpdater) Installs() []UpdateInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]UpdateInfo(nil), u.installs...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notifications.NotificationOptions
}

func (n *fakeNotifier) SendNotification(options notifications.NotificationOptions) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, options)
	return n.err
}

// pingService stands in for a bound service in registry tests.
type pingService struct{}

func (p *pingService) Ping() string { return "pong" }
