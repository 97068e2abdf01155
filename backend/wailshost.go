package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"
)

// WailsHostOptions configures the wails application
type WailsHostOptions struct {
	Name        string
	Description string
	Assets      fs.FS
	Logger      *slog.Logger
}

// WailsHost runs the shell on a wails v3 application
type WailsHost struct {
	app *application.App
	log *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewWailsHost(opts WailsHostOptions) *WailsHost {
	app := application.New(application.Options{
		Name:        opts.Name,
		Description: opts.Description,
		Logger:      opts.Logger,
		Assets: application.AssetOptions{
			Handler: application.AssetFileServerFS(opts.Assets),
		},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: true,
		},
	})
	return &WailsHost{
		app: app,
		log: opts.Logger.With("component", "host"),
	}
}

func (h *WailsHost) CreateWindow(spec WindowSpec) (HostWindow, error) {
	window := h.app.Window.NewWithOptions(application.WebviewWindowOptions{
		Name:                       spec.ID,
		Title:                      spec.Title,
		URL:                        spec.URL,
		Width:                      spec.Width,
		Height:                     spec.Height,
		Hidden:                     true,
		DevToolsEnabled:            spec.DevTools,
		DefaultContextMenuDisabled: !spec.DevTools,
		BackgroundColour:           application.NewRGB(27, 38, 54),
		Mac: application.MacWindow{
			InvisibleTitleBarHeight: 50,
			Backdrop:                application.MacBackdropTranslucent,
			TitleBar:                application.MacTitleBarHiddenInset,
		},
	})
	if window == nil {
		return nil, fmt.Errorf("wails returned no window for %q", spec.ID)
	}
	return &wailsWindow{window: window}, nil
}

func (h *WailsHost) RegisterService(name string, svc application.Service) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("services must be registered before Run")
	}
	h.app.RegisterService(svc)
	h.log.Debug("service registered", "name", name)
	return nil
}

func (h *WailsHost) OnStartup(fn func()) {
	h.app.Event.OnApplicationEvent(events.Common.ApplicationStarted, func(*application.ApplicationEvent) {
		fn()
	})
}

func (h *WailsHost) Emit(name string, data any) {
	h.app.Event.Emit(name, data)
}

// Run blocks until the application exits.
func (h *WailsHost) Run() error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	return h.app.Run()
}

func (h *WailsHost) Quit() {
	h.app.Quit()
}

type wailsWindow struct {
	window *application.WebviewWindow
}

func (w *wailsWindow) Show() error {
	w.window.Show()
	return nil
}

func (w *wailsWindow) EvaluateScript(js string) error {
	if js == "" {
		return errors.New("empty script")
	}
	w.window.ExecJS(js)
	return nil
}

// SubscribeClose uses a hook rather than a listener so fn runs before the
// window is torn down. The event is never cancelled.
func (w *wailsWindow) SubscribeClose(fn func()) {
	w.window.RegisterHook(events.Common.WindowClosing, func(*application.WindowEvent) {
		fn()
	})
}

func (w *wailsWindow) Close() {
	w.window.Close()
}
