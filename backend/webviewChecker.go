//go:build windows

package backend

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/sqweek/dialog"
	"golang.org/x/sys/windows/registry"
)

const (
	minimumWebView2Version = "86.0.616.0"
	edgeUpdateClientState  = `Software\Microsoft\EdgeUpdate\ClientState\`
	webView2DownloadURL    = "https://developer.microsoft.com/microsoft-edge/webview2/"

	// Evergreen bootstrapper, a small stub that fetches the full runtime.
	webView2BootstrapperURL = "https://go.microsoft.com/fwlink/p/?LinkId=2124703"
)

var webView2Channels = []struct{ uuid, name string }{
	{"{F3017226-FE2A-4295-8BDF-00C3A9A7E4C5}", "stable"},
	{"{2CD8A007-E189-409D-A2C8-9AF4EF3C72AA}", "beta"},
	{"{0D50BFEC-CD6A-4F9A-964C-C7416E3ACB10}", "dev"},
	{"{65C35B14-6C1D-4122-AC46-7148CC9D6497}", "canary"},
}

// WebView2Runtime is an installed WebView2 runtime
type WebView2Runtime struct {
	Version [4]int
	Channel string
	Path    string
}

func (r WebView2Runtime) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", r.Version[0], r.Version[1], r.Version[2], r.Version[3])
}

func parseWebView2Version(s string) ([4]int, error) {
	var v [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return v, fmt.Errorf("invalid version format: %s", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return v, fmt.Errorf("invalid version component %q in %s", p, s)
		}
		v[i] = n
	}
	return v, nil
}

// WebView2Preflight makes sure the rendering surface can be created before
// the shell asks for a window. Without it window creation cannot succeed.
type WebView2Preflight struct {
	log *slog.Logger
}

func NewWebView2Preflight(log *slog.Logger) *WebView2Preflight {
	return &WebView2Preflight{
		log: log.With("component", "webview2"),
	}
}

// Find looks for a compatible runtime across channels, hives and registry views.
func (p *WebView2Preflight) Find() (*WebView2Runtime, error) {
	minimum, err := parseWebView2Version(minimumWebView2Version)
	if err != nil {
		return nil, err
	}

	for _, ch := range webView2Channels {
		for _, root := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
			for _, access := range []uint32{registry.READ, registry.READ | registry.WOW64_32KEY} {
				rt, err := p.lookup(root, edgeUpdateClientState+ch.uuid, access)
				if err != nil {
					continue
				}
				if slices.CompareFunc(rt.Version[:], minimum[:], cmp.Compare[int]) >= 0 {
					rt.Channel = ch.name
					return rt, nil
				}
			}
		}
	}
	return nil, errors.New("WebView2 not found or version too old")
}

func (p *WebView2Preflight) lookup(root registry.Key, path string, access uint32) (*WebView2Runtime, error) {
	key, err := registry.OpenKey(root, path, access)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	dir, _, err := key.GetStringValue("EBWebView")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.New("empty EBWebView value")
	}

	version, err := parseWebView2Version(filepath.Base(dir))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("WebView2 path does not exist: %s", dir)
	}
	return &WebView2Runtime{Version: version, Path: dir}, nil
}

func (p *WebView2Preflight) fetchBootstrapper(dst string) error {
	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(),
		tls_client.WithTimeoutSeconds(120),
		tls_client.WithClientProfile(profiles.Chrome_120),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, webView2BootstrapperURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download WebView2 bootstrapper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("WebView2 bootstrapper download returned status %d", resp.StatusCode)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (p *WebView2Preflight) runInstaller() error {
	tmp, err := os.MkdirTemp("", "revix_webview2_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, "MicrosoftEdgeWebview2Setup.exe")
	if err := p.fetchBootstrapper(path); err != nil {
		return err
	}

	p.log.Info("running WebView2 installer", "path", path)
	if err := exec.Command(path).Run(); err != nil {
		return fmt.Errorf("installer failed: %w", err)
	}
	return nil
}

// Ensure returns the runtime, offering to install it when missing. Declining
// returns an error; the caller treats it like a failed window creation.
func (p *WebView2Preflight) Ensure() (*WebView2Runtime, error) {
	rt, err := p.Find()
	if err == nil {
		p.log.Info("WebView2 available", "version", rt.String(), "channel", rt.Channel, "path", rt.Path)
		return rt, nil
	}
	p.log.Warn("WebView2 not found", "error", err)

	ok := dialog.Message("%s", "Revix needs the Microsoft WebView2 Runtime, which is not installed.\n\nInstall it now?").
		Title("WebView2 Runtime Required").
		YesNo()
	if !ok {
		return nil, errors.New("WebView2 runtime installation declined")
	}

	if err := p.runInstaller(); err != nil {
		return nil, fmt.Errorf("failed to install WebView2 Runtime: %w\n\nInstall it manually from %s", err, webView2DownloadURL)
	}

	rt, err = p.Find()
	if err != nil {
		return nil, fmt.Errorf("WebView2 Runtime still not detected after install; install it manually from %s", webView2DownloadURL)
	}
	p.log.Info("WebView2 installed", "version", rt.String(), "channel", rt.Channel)
	return rt, nil
}
