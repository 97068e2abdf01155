package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revix/backend"
)

type fakeDoer struct {
	mu     sync.Mutex
	status int
	body   string
	length int64
	err    error
	reqs   []*http.Request
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode:    d.status,
		Body:          io.NopCloser(strings.NewReader(d.body)),
		ContentLength: d.length,
		Header:        http.Header{},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(check, download HTTPDoer) *Client {
	return NewWithDoer(Config{
		Endpoint:       "https://releases.example.com/{{target}}/{{arch}}/{{current_version}}",
		CurrentVersion: "1.0.0",
		InstallationID: "install-1",
		CheckTimeout:   time.Second,
	}, check, download, testLogger())
}

func TestEndpointURL(t *testing.T) {
	c := testClient(&fakeDoer{}, &fakeDoer{})
	want := fmt.Sprintf("https://releases.example.com/%s/%s/1.0.0", runtime.GOOS, Arch())
	assert.Equal(t, want, c.EndpointURL())
}

func TestCheckNewerVersion(t *testing.T) {
	body := fmt.Sprintf(`{
		"version": "v2.0.0",
		"notes": "<ul><li>Fix crash</li><li>Faster sync</li></ul>",
		"pub_date": "2025-03-01T10:00:00Z",
		"platforms": {
			%q: {"url": "https://cdn.example.com/revix-2.0.0", "checksum": "sha256:abc"},
			"plan9-mips": {"url": "https://cdn.example.com/other"}
		}
	}`, Target())
	doer := &fakeDoer{status: http.StatusOK, body: body}
	c := testClient(doer, &fakeDoer{})

	info, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "- Fix crash\n- Faster sync", info.Notes)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), info.PubDate.UTC())
	assert.Equal(t, "https://cdn.example.com/revix-2.0.0", info.URL)
	assert.Equal(t, "sha256:abc", info.Checksum)

	require.Len(t, doer.reqs, 1)
	req := doer.reqs[0]
	assert.Equal(t, c.EndpointURL(), req.URL.String())
	// Keys stay lowercase on the wire, so read them raw rather than via Get.
	assert.Equal(t, []string{"install-1"}, req.Header["x-installation-id"])
	require.Len(t, req.Header["x-request-id"], 1)
	assert.NotEmpty(t, req.Header["x-request-id"][0])
	require.Len(t, req.Header["user-agent"], 1)
	assert.Contains(t, req.Header["user-agent"][0], "revix-desktop/1.0.0")
	assert.Equal(t, []string{"accept", "user-agent", "x-installation-id", "x-request-id"}, req.Header[http.HeaderOrderKey])
}

func TestCheckNoUpdate(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		c := testClient(&fakeDoer{status: http.StatusNoContent}, &fakeDoer{})
		info, err := c.Check(context.Background())
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	for _, version := range []string{"1.0.0", "0.9.5", "v1.0.0"} {
		t.Run("remote "+version, func(t *testing.T) {
			body := fmt.Sprintf(`{"version": %q, "url": "https://cdn.example.com/x"}`, version)
			c := testClient(&fakeDoer{status: http.StatusOK, body: body}, &fakeDoer{})
			info, err := c.Check(context.Background())
			require.NoError(t, err)
			assert.Nil(t, info)
		})
	}
}

func TestCheckFlatManifest(t *testing.T) {
	body := `{"version": "1.1.0", "url": "https://cdn.example.com/revix", "checksum": "deadbeef"}`
	c := testClient(&fakeDoer{status: http.StatusOK, body: body}, &fakeDoer{})

	info, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "1.1.0", info.Version)
	assert.Equal(t, "https://cdn.example.com/revix", info.URL)
	assert.True(t, info.PubDate.IsZero())
}

func TestCheckErrors(t *testing.T) {
	cases := []struct {
		name string
		doer *fakeDoer
		want string
	}{
		{"transport", &fakeDoer{err: errors.New("connection refused")}, "connection refused"},
		{"server error", &fakeDoer{status: http.StatusInternalServerError}, "status code 500"},
		{"bad json", &fakeDoer{status: http.StatusOK, body: "{"}, "parse"},
		{"no version", &fakeDoer{status: http.StatusOK, body: `{"url": "https://x.example.com"}`}, "no version"},
		{"not semver", &fakeDoer{status: http.StatusOK, body: `{"version": "latest"}`}, "not semver"},
		{"no artifact", &fakeDoer{status: http.StatusOK, body: `{"version": "2.0.0", "platforms": {"plan9-mips": {"url": "https://x.example.com"}}}`}, "no update artifact"},
		{"bad scheme", &fakeDoer{status: http.StatusOK, body: `{"version": "2.0.0", "url": "file:///tmp/revix"}`}, "http or https"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(tc.doer, &fakeDoer{})
			info, err := c.Check(context.Background())
			assert.Nil(t, info)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCheckNoEndpoint(t *testing.T) {
	c := NewWithDoer(Config{CurrentVersion: "1.0.0"}, &fakeDoer{}, &fakeDoer{}, testLogger())
	_, err := c.Check(context.Background())
	assert.ErrorIs(t, err, backend.ErrNoUpdateSource)
}

func TestCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := testClient(&fakeDoer{err: errors.New("request aborted")}, &fakeDoer{})

	_, err := c.Check(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// Client satisfies the orchestrator's updater capability.
var _ backend.Updater = (*Client)(nil)
