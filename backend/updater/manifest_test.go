package updater

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.0.0", "1.0.0", 0},
		{"2.0.0", "1.9.9", 1},
		{"1.2", "1.10", -1},
		{"1.0.0-beta.1", "1.0.0", -1},
		{"1.0.0-beta.2", "1.0.0-beta.10", -1},
		{"not-a-version", "0.0.1", -1},
	}
	for _, tc := range cases {
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			assert.Equal(t, tc.want, CompareVersions(tc.a, tc.b))
		})
	}
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("2.0.0", "1.0.0")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = IsNewer("1.0.0", "1.0.0")
	require.NoError(t, err)
	assert.False(t, newer)

	_, err = IsNewer("garbage", "1.0.0")
	assert.Error(t, err)

	_, err = IsNewer("1.0.0", "0.1.0-dev+local.build")
	assert.NoError(t, err)
}

func TestManifestArtifact(t *testing.T) {
	m := &Manifest{
		Version: "2.0.0",
		URL:     "https://cdn.example.com/flat",
		Platforms: map[string]Artifact{
			"linux-x86_64":   {URL: "https://cdn.example.com/linux", Checksum: "aa"},
			"windows-x86_64": {URL: ""},
		},
	}

	a, err := m.Artifact("linux-x86_64")
	require.NoError(t, err)
	assert.Equal(t, Artifact{URL: "https://cdn.example.com/linux", Checksum: "aa"}, a)

	// A platform map that misses the target does not fall back to the flat URL.
	_, err = m.Artifact("darwin-aarch64")
	assert.ErrorIs(t, err, ErrNoArtifact)
	_, err = m.Artifact("windows-x86_64")
	assert.ErrorIs(t, err, ErrNoArtifact)

	flat := &Manifest{Version: "2.0.0", URL: "https://cdn.example.com/flat", Checksum: "bb"}
	a, err = flat.Artifact("darwin-aarch64")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/flat", a.URL)
	assert.Equal(t, "bb", a.Checksum)
}

func TestManifestPublished(t *testing.T) {
	assert.Equal(t, 2025, (&Manifest{PubDate: "2025-01-02T03:04:05Z"}).Published().Year())
	assert.True(t, (&Manifest{PubDate: "yesterday"}).Published().IsZero())
	assert.True(t, (&Manifest{}).Published().IsZero())
}

func TestTarget(t *testing.T) {
	assert.Contains(t, Target(), "-")
	assert.NotEmpty(t, Arch())
}

func TestPlainNotes(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "  Bug fixes and improvements.\n", "Bug fixes and improvements."},
		{"empty", "", ""},
		{"list", "<ul><li>Fix crash</li><li>Faster sync</li></ul>", "- Fix crash\n- Faster sync"},
		{"paragraphs", "<h2>2.0.0</h2><p>New   sidebar.</p><p>Dark mode<br>everywhere</p>", "2.0.0\nNew sidebar.\nDark mode\neverywhere"},
		{"entities", "<p>Tom &amp; Jerry</p>", "Tom & Jerry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlainNotes(tc.in))
		})
	}
}
