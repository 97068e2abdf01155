package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds the remote version check so an unreachable
// update source cannot leave the background task hanging.
const DefaultCheckTimeout = 30 * time.Second

var ErrNoUpdateSource = errors.New("no update source configured")

// Updater is the host updater capability
type Updater interface {
	// Check returns nil when no newer version is available.
	Check(ctx context.Context) (*UpdateInfo, error)
	// DownloadAndInstall fetches and installs info. onProgress and onReady
	// may be nil.
	DownloadAndInstall(ctx context.Context, info UpdateInfo, onProgress func(UpdateProgress), onReady func()) error
}

// UpdateOptions configures the UpdateOrchestrator
type UpdateOptions struct {
	Disabled     bool
	CheckTimeout time.Duration
	// OnProgress receives download progress. Delivery is best-effort.
	OnProgress func(UpdateProgress)
	// OnStatus receives state changes. Delivery is best-effort.
	OnStatus func(UpdateStatus)
	// OnInstalled runs after a successful install, e.g. to relaunch.
	OnInstalled func(UpdateInfo)
}

// UpdateOrchestrator runs at most one check-and-install sequence per process
type UpdateOrchestrator struct {
	updater Updater
	opts    UpdateOptions
	log     *slog.Logger

	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	status  UpdateStatus
	outcome UpdateOutcome
}

func NewUpdateOrchestrator(updater Updater, opts UpdateOptions, log *slog.Logger) *UpdateOrchestrator {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	return &UpdateOrchestrator{
		updater: updater,
		opts:    opts,
		log:     log.With("component", "updater"),
		done:    make(chan struct{}),
		status:  UpdateStatus{State: UpdateIdle},
	}
}

// Start spawns the update sequence in the background. Only the first call
// does anything.
func (o *UpdateOrchestrator) Start(ctx context.Context) {
	o.once.Do(func() {
		go func() {
			defer close(o.done)
			outcome := o.run(ctx)
			o.mu.Lock()
			o.outcome = outcome
			o.mu.Unlock()
		}()
	})
}

// Run executes the sequence synchronously. Like Start it runs at most once;
// later calls wait for and return the first result.
func (o *UpdateOrchestrator) Run(ctx context.Context) UpdateOutcome {
	o.Start(ctx)
	<-o.done
	return o.Outcome()
}

// Done is closed once the sequence has finished.
func (o *UpdateOrchestrator) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the sequence finishes or ctx ends.
func (o *UpdateOrchestrator) Wait(ctx context.Context) (UpdateOutcome, error) {
	select {
	case <-o.done:
		return o.Outcome(), nil
	case <-ctx.Done():
		return UpdateOutcome{}, ctx.Err()
	}
}

// Outcome returns the terminal result, or the zero value while running.
func (o *UpdateOrchestrator) Outcome() UpdateOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome
}

// Status returns a snapshot for the frontend.
func (o *UpdateOrchestrator) Status() UpdateStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	if s.Outcome != nil {
		oc := *s.Outcome
		s.Outcome = &oc
	}
	return s
}

func (o *UpdateOrchestrator) run(ctx context.Context) UpdateOutcome {
	if o.opts.Disabled || o.updater == nil {
		outcome := UpdateOutcome{Kind: OutcomeDisabled}
		if !o.opts.Disabled {
			outcome.Reason = ErrNoUpdateSource.Error()
		}
		o.log.Info("update check skipped", "outcome", outcome.String())
		return o.finish(outcome)
	}

	o.setState(UpdateChecking, "")
	o.log.Info("checking for updates", "timeout", o.opts.CheckTimeout)

	info, err := o.check(ctx)
	if err != nil {
		o.log.Warn("update check failed", "error", err)
		return o.finish(UpdateOutcome{Kind: OutcomeCheckFailed, Reason: err.Error()})
	}
	if info == nil {
		o.log.Info("no update available")
		return o.finish(UpdateOutcome{Kind: OutcomeNoUpdate})
	}

	o.log.Info("update available", "version", info.Version)
	o.setState(UpdateDownloading, info.Version)

	if err := o.install(ctx, *info); err != nil {
		o.log.Warn("update install failed, staying on current version", "version", info.Version, "error", err)
		return o.finish(UpdateOutcome{Kind: OutcomeInstallFailed, Version: info.Version, Reason: err.Error()})
	}

	o.log.Info("update installed", "version", info.Version)
	outcome := o.finish(UpdateOutcome{Kind: OutcomeInstalled, Version: info.Version})
	if o.opts.OnInstalled != nil {
		o.safely("installed hook", func() { o.opts.OnInstalled(*info) })
	}
	return outcome
}

func (o *UpdateOrchestrator) check(ctx context.Context) (info *UpdateInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.CheckTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("update check panicked: %v", r)
		}
	}()

	info, err = o.updater.Check(ctx)
	if err != nil {
		return nil, err
	}
	if info != nil && info.Version == "" {
		return nil, errors.New("update source returned an empty version")
	}
	return info, nil
}

func (o *UpdateOrchestrator) install(ctx context.Context, info UpdateInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update install panicked: %v", r)
		}
	}()

	progress := make(chan UpdateProgress, 1)
	relayed := make(chan struct{})
	closed := false
	go o.relayProgress(progress, relayed)
	defer func() {
		o.mu.Lock()
		closed = true
		close(progress)
		o.mu.Unlock()
		<-relayed
	}()

	onProgress := func(p UpdateProgress) {
		p.Version = info.Version
		o.mu.Lock()
		defer o.mu.Unlock()
		if closed {
			return
		}
		o.status.Progress = p
		// Drop the update rather than block the download on a slow sink.
		select {
		case progress <- p:
		default:
		}
	}
	onReady := func() {
		o.log.Info("update downloaded, installing", "version", info.Version)
		o.setState(UpdateInstalling, info.Version)
	}

	return o.updater.DownloadAndInstall(ctx, info, onProgress, onReady)
}

func (o *UpdateOrchestrator) relayProgress(progress <-chan UpdateProgress, done chan<- struct{}) {
	defer close(done)
	for p := range progress {
		if o.opts.OnProgress != nil {
			o.safely("progress hook", func() { o.opts.OnProgress(p) })
		}
	}
}

func (o *UpdateOrchestrator) setState(state UpdateState, version string) {
	o.mu.Lock()
	o.status.State = state
	if version != "" {
		o.status.Version = version
	}
	s := o.status
	o.mu.Unlock()
	o.publish(s)
}

func (o *UpdateOrchestrator) finish(outcome UpdateOutcome) UpdateOutcome {
	o.mu.Lock()
	o.status.State = UpdateDone
	o.status.Outcome = &outcome
	o.outcome = outcome
	s := o.status
	o.mu.Unlock()
	o.publish(s)
	return outcome
}

func (o *UpdateOrchestrator) publish(s UpdateStatus) {
	if o.opts.OnStatus == nil {
		return
	}
	o.safely("status hook", func() { o.opts.OnStatus(s) })
}

func (o *UpdateOrchestrator) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(what+" panicked", "panic", r)
		}
	}()
	fn()
}
