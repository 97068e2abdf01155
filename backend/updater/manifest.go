package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

var ErrNoArtifact = errors.New("no update artifact for this platform")

// Artifact is one downloadable package
type Artifact struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
}

// Manifest is the update source response. Either Platforms is set, keyed by
// Target(), or the flat URL/Checksum pair applies to every platform.
type Manifest struct {
	Version   string              `json:"version"`
	Notes     string              `json:"notes"`
	PubDate   string              `json:"pub_date"`
	URL       string              `json:"url"`
	Checksum  string              `json:"checksum"`
	Platforms map[string]Artifact `json:"platforms"`
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse update manifest: %w", err)
	}
	if m.Version == "" {
		return nil, errors.New("update manifest has no version")
	}
	if !semver.IsValid(canonical(m.Version)) {
		return nil, fmt.Errorf("update manifest version %q is not semver", m.Version)
	}
	return &m, nil
}

// Artifact returns the package for target.
func (m *Manifest) Artifact(target string) (Artifact, error) {
	if a, ok := m.Platforms[target]; ok && a.URL != "" {
		return a, nil
	}
	if len(m.Platforms) == 0 && m.URL != "" {
		return Artifact{URL: m.URL, Checksum: m.Checksum}, nil
	}
	return Artifact{}, fmt.Errorf("%w: %s", ErrNoArtifact, target)
}

// Published parses PubDate, returning the zero time if absent or malformed.
func (m *Manifest) Published() time.Time {
	t, err := time.Parse(time.RFC3339, m.PubDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Arch maps GOARCH onto the names update manifests use.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "arm":
		return "armv7"
	}
	return runtime.GOARCH
}

// Target is the manifest platform key, e.g. "linux-x86_64".
func Target() string {
	return runtime.GOOS + "-" + Arch()
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CompareVersions compares two versions, tolerating a missing "v" prefix
// and short forms like "1.2". Invalid versions sort before valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// IsNewer reports whether remote is strictly newer than current.
func IsNewer(remote, current string) (bool, error) {
	if !semver.IsValid(canonical(remote)) {
		return false, fmt.Errorf("invalid remote version %q", remote)
	}
	if !semver.IsValid(canonical(current)) {
		return false, fmt.Errorf("invalid current version %q", current)
	}
	return CompareVersions(remote, current) > 0, nil
}
