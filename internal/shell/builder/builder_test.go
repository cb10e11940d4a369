package builder

import (
	"archive/tar"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/buildspec"
)

func TestBuildContextShadowsSourceFiles(t *testing.T) {
	source := fstest.MapFS{
		"index.php":     {Data: []byte("<?php echo 'hi';")},
		"Dockerfile":    {Data: []byte("FROM scratch # from the repo, must lose")},
		"nginx.conf":    {Data: []byte("user config, must lose")},
		"sub/other.php": {Data: []byte("<?php")},
	}
	def := &buildspec.ContainerDefinition{
		Dockerfile: "FROM php:8.2-fpm\n",
		Files:      map[string]string{"nginx.conf": "rendered nginx config"},
	}

	r, err := buildContext(source, def)
	require.NoError(t, err)

	entries := readTar(t, r)
	assert.Equal(t, "FROM php:8.2-fpm\n", entries["Dockerfile"])
	assert.Equal(t, "rendered nginx config", entries["nginx.conf"])
	assert.Equal(t, "<?php echo 'hi';", entries["index.php"])
	assert.Equal(t, "<?php", entries["sub/other.php"])
}

func TestBuildContextSkipsGitDir(t *testing.T) {
	source := fstest.MapFS{
		"index.php":   {Data: []byte("<?php")},
		".git/config": {Data: []byte("secret")},
	}
	def := &buildspec.ContainerDefinition{Dockerfile: "FROM nginx\n"}

	r, err := buildContext(source, def)
	require.NoError(t, err)

	entries := readTar(t, r)
	assert.Contains(t, entries, "index.php")
	assert.NotContains(t, entries, ".git/config")
}

func TestBaseImageUnavailable(t *testing.T) {
	base := "php:8.3-fpm"

	assert.True(t, baseImageUnavailable(
		errors.New("pull access denied for php:8.3-fpm"), base))
	assert.True(t, baseImageUnavailable(
		errors.New("failed to resolve source metadata for docker.io/library/php:8.3-fpm"), base))
	assert.False(t, baseImageUnavailable(
		errors.New("RUN composer install exited with code 1"), base))
	assert.False(t, baseImageUnavailable(nil, base))
}

func TestDrainBuildOutput(t *testing.T) {
	stream := `{"stream":"Step 1/4 : FROM php:8.2-fpm\n"}
{"stream":" ---> abc123\n"}
{"status":"Pushing layer"}
`
	logs, err := drainBuildOutput(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, []string{"Step 1/4 : FROM php:8.2-fpm", " ---> abc123", "Pushing layer"}, logs)
}

func TestDrainBuildOutputSurfacesError(t *testing.T) {
	stream := `{"stream":"Step 3/4 : RUN composer install\n"}
{"error":"The command '/bin/sh -c composer install' returned a non-zero code: 1"}
`
	logs, err := drainBuildOutput(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-zero code: 1")
	assert.Len(t, logs, 1)
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	entries := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(data)
	}
	return entries
}
