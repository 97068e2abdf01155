package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/google/uuid"

	"revix/backend"
)

const maxManifestSize = 1 << 20

// HTTPDoer is satisfied by tls_client.HttpClient
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds update source and install settings
type Config struct {
	// Endpoint may contain {{target}}, {{arch}} and {{current_version}}.
	Endpoint       string
	CurrentVersion string
	InstallationID string
	CheckTimeout   time.Duration
	// BinaryPath is the executable to replace; defaults to os.Executable.
	BinaryPath string
	BackupPath string
}

// Client checks the update source and installs packages from it
type Client struct {
	cfg       Config
	check     HTTPDoer
	download  HTTPDoer
	log       *slog.Logger
	target    string
	userAgent string
}

// New creates a Client backed by tls-client. Checks use the short
// CheckTimeout; package downloads get a generous one.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = backend.DefaultCheckTimeout
	}

	check, err := newHTTPClient(int(cfg.CheckTimeout / time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create update check client: %w", err)
	}
	download, err := newHTTPClient(int((10 * time.Minute) / time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create update download client: %w", err)
	}
	return NewWithDoer(cfg, check, download, log), nil
}

func newHTTPClient(timeoutSeconds int) (tls_client.HttpClient, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeoutSeconds),
		tls_client.WithClientProfile(profiles.Chrome_120),
	}
	return tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
}

// NewWithDoer creates a Client over the given transports.
func NewWithDoer(cfg Config, check, download HTTPDoer, log *slog.Logger) *Client {
	return &Client{
		cfg:       cfg,
		check:     check,
		download:  download,
		log:       log.With("component", "update-source"),
		target:    Target(),
		userAgent: fmt.Sprintf("revix-desktop/%s (%s; %s)", cfg.CurrentVersion, runtime.GOOS, Arch()),
	}
}

// EndpointURL expands the endpoint template for this platform.
func (c *Client) EndpointURL() string {
	r := strings.NewReplacer(
		"{{target}}", runtime.GOOS,
		"{{arch}}", Arch(),
		"{{current_version}}", url.PathEscape(c.cfg.CurrentVersion),
	)
	return r.Replace(c.cfg.Endpoint)
}

// Check asks the update source for a newer version. A 204 response or a
// manifest that is not newer means no update.
func (c *Client) Check(ctx context.Context) (*backend.UpdateInfo, error) {
	if c.cfg.Endpoint == "" {
		return nil, backend.ErrNoUpdateSource
	}

	endpoint := c.EndpointURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = http.Header{
		"accept":            {"application/json"},
		"user-agent":        {c.userAgent},
		"x-installation-id": {c.cfg.InstallationID},
		"x-request-id":      {uuid.NewString()},
		http.HeaderOrderKey: {
			"accept",
			"user-agent",
			"x-installation-id",
			"x-request-id",
		},
	}

	c.log.Debug("checking update source", "url", endpoint)
	resp, err := c.check.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("update check cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("update check request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("update source returned status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read update manifest: %w", err)
	}

	manifest, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}

	newer, err := IsNewer(manifest.Version, c.cfg.CurrentVersion)
	if err != nil {
		return nil, err
	}
	if !newer {
		c.log.Debug("update source has no newer version", "remote", manifest.Version, "current", c.cfg.CurrentVersion)
		return nil, nil
	}

	artifact, err := manifest.Artifact(c.target)
	if err != nil {
		return nil, err
	}
	if err := validateDownloadURL(artifact.URL); err != nil {
		return nil, err
	}

	return &backend.UpdateInfo{
		Version:  strings.TrimPrefix(manifest.Version, "v"),
		Notes:    PlainNotes(manifest.Notes),
		PubDate:  manifest.Published(),
		URL:      artifact.URL,
		Checksum: artifact.Checksum,
	}, nil
}

func validateDownloadURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid download URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New("download URL must be http or https")
	}
	if u.Host == "" {
		return errors.New("download URL has no host")
	}
	return nil
}
