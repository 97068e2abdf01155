package backend

import (
	"fmt"
	"log/slog"
	"sync"
)

// WindowHandle references the single main window. It is only mutated by the
// WindowController that created it.
type WindowHandle struct {
	id       string
	win      HostWindow
	mu       sync.Mutex
	stage    WindowStage
	history  []WindowStage
	observer []func(*WindowHandle)
}

func (h *WindowHandle) ID() string { return h.id }

// Stage returns the current lifecycle stage
func (h *WindowHandle) Stage() WindowStage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stage
}

// Visible reports whether the window has been shown and not yet closed
func (h *WindowHandle) Visible() bool {
	s := h.Stage()
	return s == StageShown || s == StageClosing
}

// History returns every stage the window has passed through, in order.
func (h *WindowHandle) History() []WindowStage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]WindowStage, len(h.history))
	copy(out, h.history)
	return out
}

func (h *WindowHandle) setStage(s WindowStage) {
	h.stage = s
	h.history = append(h.history, s)
}

// WindowController owns the main window for the lifetime of the process
type WindowController struct {
	host   Host
	log    *slog.Logger
	mu     sync.Mutex
	handle *WindowHandle
}

func NewWindowController(host Host, log *slog.Logger) *WindowController {
	return &WindowController{
		host: host,
		log:  log.With("component", "window"),
	}
}

// Handle returns the main window, or nil before Create succeeds
func (c *WindowController) Handle() *WindowHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Create asks the host for the hidden main window. Any host failure is
// wrapped in ErrWindowCreate; there is no degraded mode without a window.
func (c *WindowController) Create(spec WindowSpec) (*WindowHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		return nil, ErrWindowExists
	}

	win, err := c.host.CreateWindow(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWindowCreate, err)
	}
	if win == nil {
		return nil, fmt.Errorf("%w: host returned no window", ErrWindowCreate)
	}

	h := &WindowHandle{id: spec.ID, win: win}
	h.setStage(StageCreated)
	win.SubscribeClose(func() { c.closeRequested(h) })

	c.handle = h
	c.log.Info("window created", "id", spec.ID, "visibility", "hidden")
	return h, nil
}

// Reveal moves the window from created to shown. Revealing a window that is
// already shown is a no-op.
func (c *WindowController) Reveal(h *WindowHandle) error {
	if err := c.owns(h); err != nil {
		return err
	}

	h.mu.Lock()
	switch h.stage {
	case StageShown:
		h.mu.Unlock()
		c.log.Debug("reveal ignored, window already shown", "id", h.id)
		return nil
	case StageClosing, StageClosed:
		h.mu.Unlock()
		return ErrWindowClosed
	}
	h.mu.Unlock()

	// Show runs on the host without holding the handle lock; the host may
	// call back into SubscribeClose handlers synchronously.
	if err := h.win.Show(); err != nil {
		return fmt.Errorf("show window %s: %w", h.id, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.stage {
	case StageShown:
		// A concurrent Reveal got there first.
		return nil
	case StageClosing, StageClosed:
		return ErrWindowClosed
	}
	h.setStage(StageShown)
	c.log.Info("window shown", "id", h.id)
	return nil
}

// OnCloseRequested registers fn to observe close requests. Closing is never
// vetoed: observers run and the window proceeds to closed.
func (c *WindowController) OnCloseRequested(h *WindowHandle, fn func(*WindowHandle)) error {
	if err := c.owns(h); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = append(h.observer, fn)
	return nil
}

// RequestClose closes the window programmatically.
func (c *WindowController) RequestClose(h *WindowHandle) error {
	if err := c.owns(h); err != nil {
		return err
	}
	if c.closeRequested(h) {
		h.win.Close()
	}
	return nil
}

// closeRequested drives created/shown -> closing -> closed. It reports false
// if the window was already closing.
func (c *WindowController) closeRequested(h *WindowHandle) bool {
	h.mu.Lock()
	if h.stage == StageClosing || h.stage == StageClosed {
		h.mu.Unlock()
		return false
	}
	h.setStage(StageClosing)
	observers := make([]func(*WindowHandle), len(h.observer))
	copy(observers, h.observer)
	h.mu.Unlock()

	c.log.Info("window close requested", "id", h.id)
	for _, fn := range observers {
		c.notify(h, fn)
	}

	h.mu.Lock()
	h.setStage(StageClosed)
	h.mu.Unlock()
	c.log.Info("window closed", "id", h.id)
	return true
}

func (c *WindowController) notify(h *WindowHandle, fn func(*WindowHandle)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("close observer panicked", "id", h.id, "panic", r)
		}
	}()
	fn(h)
}

func (c *WindowController) owns(h *WindowHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil || h != c.handle {
		return ErrUnknownWindow
	}
	return nil
}
