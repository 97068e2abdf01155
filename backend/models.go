package backend

import (
	"fmt"
	"strings"
	"time"
)

// BuildMode selects whether the surface is hardened and devtools are enabled
type BuildMode int

const (
	BuildDebug BuildMode = iota
	BuildRelease
)

func (m BuildMode) String() string {
	if m == BuildRelease {
		return "release"
	}
	return "debug"
}

// ParseBuildMode resolves the link-time build mode string. Anything that is
// not "release" runs as debug.
func ParseBuildMode(s string) BuildMode {
	if strings.EqualFold(strings.TrimSpace(s), "release") {
		return BuildRelease
	}
	return BuildDebug
}

// WindowStage is the lifecycle stage of the main window
type WindowStage int

const (
	StageCreated WindowStage = iota
	StageShown
	StageClosing
	StageClosed
)

func (s WindowStage) String() string {
	switch s {
	case StageCreated:
		return "created"
	case StageShown:
		return "shown"
	case StageClosing:
		return "closing"
	case StageClosed:
		return "closed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// WindowSpec describes the window the host should create
type WindowSpec struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// DevTools enables the inspector. Only set in debug builds.
	DevTools bool `json:"devTools"`
}

// UpdateInfo describes a newer version found on the update source
type UpdateInfo struct {
	Version  string    `json:"version"`
	Notes    string    `json:"notes,omitempty"`
	PubDate  time.Time `json:"pubDate,omitempty"`
	URL      string    `json:"url"`
	Checksum string    `json:"checksum,omitempty"`
}

// UpdateProgress is reported while an update package downloads
type UpdateProgress struct {
	Version    string `json:"version"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"` // 0 when the server sent no length
	Chunk      int64  `json:"chunk"`
}

// Percent returns download progress in [0,100], or -1 if the size is unknown.
func (p UpdateProgress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	pct := int(p.Downloaded * 100 / p.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// OutcomeKind is the terminal result class of an update attempt
type OutcomeKind string

const (
	OutcomeNoUpdate      OutcomeKind = "no-update"
	OutcomeInstalled     OutcomeKind = "installed"
	OutcomeCheckFailed   OutcomeKind = "check-failed"
	OutcomeInstallFailed OutcomeKind = "install-failed"
	OutcomeDisabled      OutcomeKind = "disabled"
)

// UpdateOutcome is the terminal result of one check-and-install sequence
type UpdateOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Version string      `json:"version,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func (o UpdateOutcome) String() string {
	switch {
	case o.Reason != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	case o.Version != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Version)
	}
	return string(o.Kind)
}

// Failed reports whether the outcome is a check or install failure.
func (o UpdateOutcome) Failed() bool {
	return o.Kind == OutcomeCheckFailed || o.Kind == OutcomeInstallFailed
}

// UpdateState is the live state shown to the frontend
type UpdateState string

const (
	UpdateIdle        UpdateState = "idle"
	UpdateChecking    UpdateState = "checking"
	UpdateDownloading UpdateState = "downloading"
	UpdateInstalling  UpdateState = "installing"
	UpdateDone        UpdateState = "done"
)

// UpdateStatus is a snapshot of the update task
type UpdateStatus struct {
	State    UpdateState    `json:"state"`
	Version  string         `json:"version,omitempty"`
	Progress UpdateProgress `json:"progress"`
	Outcome  *UpdateOutcome `json:"outcome,omitempty"`
}
