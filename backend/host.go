package backend

import (
	"errors"

	"github.com/wailsapp/wails/v3/pkg/application"
)

var (
	ErrWindowCreate  = errors.New("window creation failed")
	ErrWindowExists  = errors.New("main window already exists")
	ErrWindowClosed  = errors.New("window is closing or closed")
	ErrUnknownWindow = errors.New("window handle not owned by this controller")
)

// Host is the windowing and event loop capability the shell runs on.
// The wails implementation lives in wailshost.go; tests use fakes.
type Host interface {
	// CreateWindow creates a hidden top-level window.
	CreateWindow(spec WindowSpec) (HostWindow, error)
	// RegisterService exposes a capability plugin to the hosted UI.
	// Must be called before Run.
	RegisterService(name string, svc application.Service) error
	// OnStartup registers fn to run once the event loop is up.
	OnStartup(fn func())
	// Emit sends a fire-and-forget event to the hosted UI.
	Emit(name string, data any)
	// Run blocks dispatching events until Quit or the last window closes.
	Run() error
	Quit()
}

// HostWindow is one native window with an embedded rendering surface
type HostWindow interface {
	Show() error
	// EvaluateScript submits js to the window's active surface.
	EvaluateScript(js string) error
	// SubscribeClose registers fn for user or system close requests.
	SubscribeClose(fn func())
	Close()
}
