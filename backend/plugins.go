package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/samber/lo"
	"github.com/sqweek/dialog"
	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/services/notifications"
)

var (
	ErrPluginRegistered = errors.New("plugins already registered")
	ErrDuplicatePlugin  = errors.New("duplicate plugin name")
)

// Plugin is a host capability exposed to the hosted UI. The shell core only
// relies on plugins being present; what they do is up to each service.
type Plugin interface {
	Name() string
	Service() application.Service
}

type plugin struct {
	name string
	svc  application.Service
}

func (p plugin) Name() string                 { return p.name }
func (p plugin) Service() application.Service { return p.svc }

// NewPlugin wraps svc as a named plugin. svc must be a pointer to a named
// type so the binding generator can see its methods.
func NewPlugin[T any](name string, svc *T) Plugin {
	return plugin{
		name: name,
		svc:  application.NewServiceWithOptions(svc, application.ServiceOptions{Name: name}),
	}
}

// PluginRegistry collects plugins and registers them with the host once
type PluginRegistry struct {
	mu         sync.Mutex
	plugins    []Plugin
	registered bool
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

func (r *PluginRegistry) Add(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return ErrPluginRegistered
	}
	if lo.ContainsBy(r.plugins, func(q Plugin) bool { return q.Name() == p.Name() }) {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name())
	}
	r.plugins = append(r.plugins, p)
	return nil
}

// Names returns plugin names in registration order.
func (r *PluginRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.plugins, func(p Plugin, _ int) string { return p.Name() })
}

// RegisterAll hands every plugin to the host. It may only succeed once.
func (r *PluginRegistry) RegisterAll(host Host) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return ErrPluginRegistered
	}
	for _, p := range r.plugins {
		if err := host.RegisterService(p.Name(), p.Service()); err != nil {
			return fmt.Errorf("register plugin %s: %w", p.Name(), err)
		}
	}
	r.registered = true
	return nil
}

// DialogService shows native dialogs
type DialogService struct{}

func NewDialogService() *DialogService {
	return &DialogService{}
}

func (d *DialogService) Message(title, message string) {
	dialog.Message("%s", message).Title(title).Info()
}

func (d *DialogService) Error(title, message string) {
	dialog.Message("%s", message).Title(title).Error()
}

func (d *DialogService) Confirm(title, message string) bool {
	return dialog.Message("%s", message).Title(title).YesNo()
}

// OpenFile returns the chosen path, or "" if the user cancelled.
func (d *DialogService) OpenFile(title, filterDesc string, extensions []string) (string, error) {
	b := dialog.File().Title(title)
	if len(extensions) > 0 {
		b = b.Filter(filterDesc, extensions...)
	}
	path, err := b.Load()
	if errors.Is(err, dialog.ErrCancelled) {
		return "", nil
	}
	return path, err
}

// ShellService opens external links in the user's browser
type ShellService struct {
	open func(string) error
	log  *slog.Logger
}

var allowedSchemes = []string{"http", "https", "mailto", "tel"}

func NewShellService(log *slog.Logger) *ShellService {
	return &ShellService{
		open: browser.OpenURL,
		log:  log.With("component", "plugins"),
	}
}

func (s *ShellService) Open(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !lo.Contains(allowedSchemes, u.Scheme) {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	s.log.Debug("opening external url", "url", target)
	return s.open(target)
}

// Notification is sent to the hosted UI when no native notifier is available
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

const EventNotification = "notification:show"

// NotificationSender delivers native OS notifications. It is satisfied by
// the wails notifications service.
type NotificationSender interface {
	SendNotification(options notifications.NotificationOptions) error
}

// NotificationService shows OS notifications, falling back to an event the
// hosted UI presents itself.
type NotificationService struct {
	host   Host
	sender NotificationSender
	log    *slog.Logger
}

func NewNotificationService(host Host, sender NotificationSender, log *slog.Logger) *NotificationService {
	return &NotificationService{
		host:   host,
		sender: sender,
		log:    log.With("component", "plugins"),
	}
}

func (n *NotificationService) Notify(title, body string) error {
	if title == "" {
		return errors.New("notification title is required")
	}
	if n.sender != nil {
		err := n.sender.SendNotification(notifications.NotificationOptions{
			ID:    uuid.NewString(),
			Title: title,
			Body:  body,
		})
		if err == nil {
			return nil
		}
		n.log.Warn("native notification failed, forwarding to UI", "error", err)
	}
	n.host.Emit(EventNotification, Notification{Title: title, Body: body})
	return nil
}

// ProcessService exits or relaunches the application
type ProcessService struct {
	host     Host
	log      *slog.Logger
	exit     func(int)
	relaunch func() error
}

func NewProcessService(host Host, log *slog.Logger) *ProcessService {
	return &ProcessService{
		host:     host,
		log:      log.With("component", "plugins"),
		exit:     os.Exit,
		relaunch: relaunch,
	}
}

func (p *ProcessService) Exit(code int) {
	p.log.Info("exit requested", "code", code)
	p.host.Quit()
	p.exit(code)
}

// Relaunch starts a fresh copy of the executable and quits this one.
func (p *ProcessService) Relaunch() error {
	if err := p.relaunch(); err != nil {
		return fmt.Errorf("failed to relaunch: %w", err)
	}
	p.log.Info("relaunched, quitting")
	p.host.Quit()
	return nil
}

// UpdaterService exposes update status to the hosted UI
type UpdaterService struct {
	version string
	updates *UpdateOrchestrator
}

func NewUpdaterService(version string, updates *UpdateOrchestrator) *UpdaterService {
	return &UpdaterService{version: version, updates: updates}
}

func (u *UpdaterService) Version() string { return u.version }

func (u *UpdaterService) Status() UpdateStatus {
	return u.updates.Status()
}
