package local_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/hash/sha256"
	"github.com/JakeFAU/report-discovery/internal/storage/local"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		archive, err := local.New(local.Config{BaseDir: filepath.Join(t.TempDir(), "pages")}, sha256.New(), nil)
		require.NoError(t, err)
		assert.NotNil(t, archive)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{}, sha256.New(), nil)
		assert.Error(t, err)
	})

	t.Run("MissingHasher", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: t.TempDir()}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o600))
		_, err := local.New(local.Config{BaseDir: file}, sha256.New(), nil)
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

		_, err := local.New(local.Config{BaseDir: dir}, sha256.New(), nil)
		assert.Error(t, err)
	})
}

func TestArchiveWritesBodyAndSidecar(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	archive, err := local.New(local.Config{BaseDir: base}, sha256.New(), fixedClock{now: now})
	require.NoError(t, err)

	page := discovery.Page{
		URL:        "https://acme.example/ir",
		FinalURL:   "https://WWW.Acme.example:8443/investors",
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/html"}},
		Body:       []byte("<html>reports</html>"),
		Duration:   1500 * time.Millisecond,
	}
	uri, err := archive.Archive(context.Background(), page)
	require.NoError(t, err)

	key := sha256.New().HashString(page.URL)
	bodyPath := filepath.Join(base, "www.acme.example", key+".html")
	assert.Equal(t, "file://"+bodyPath, uri)

	body, err := os.ReadFile(bodyPath)
	require.NoError(t, err)
	assert.Equal(t, page.Body, body)

	raw, err := os.ReadFile(strings.TrimSuffix(bodyPath, ".html") + ".json")
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, page.URL, meta["url"])
	assert.EqualValues(t, 200, meta["status_code"])
	assert.EqualValues(t, 1500, meta["duration_ms"])
	assert.EqualValues(t, len(page.Body), meta["bytes"])
	assert.Equal(t, "2024-06-01T12:00:00Z", meta["archived_at"])
}

func TestArchiveOverwritesSameURL(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	archive, err := local.New(local.Config{BaseDir: base}, sha256.New(), nil)
	require.NoError(t, err)

	page := discovery.Page{URL: "https://acme.example/ir", Body: []byte("v1")}
	first, err := archive.Archive(context.Background(), page)
	require.NoError(t, err)
	page.Body = []byte("v2")
	second, err := archive.Archive(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	body, err := os.ReadFile(strings.TrimPrefix(second, "file://"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
}

func TestArchiveRequiresURL(t *testing.T) {
	t.Parallel()

	archive, err := local.New(local.Config{BaseDir: t.TempDir()}, sha256.New(), nil)
	require.NoError(t, err)
	_, err = archive.Archive(context.Background(), discovery.Page{})
	require.Error(t, err)
}

func TestArchiveUnknownHost(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	archive, err := local.New(local.Config{BaseDir: base}, sha256.New(), nil)
	require.NoError(t, err)
	uri, err := archive.Archive(context.Background(), discovery.Page{URL: "not a url"})
	require.NoError(t, err)
	assert.Contains(t, uri, filepath.Join(base, "_unknown"))
}
