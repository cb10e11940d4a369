package detect

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

func TestDetectLaravel(t *testing.T) {
	tree := fstest.MapFS{
		"artisan": file("#!/usr/bin/env php"),
		"composer.json": file(`{
			"require": {
				"php": "^8.2",
				"ext-gd": "*",
				"laravel/framework": "^11.0"
			}
		}`),
		"public/index.php": file("<?php"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeLaravel, descriptor.AppType)
	// The manifest constraint admits fewer runtimes than the signature default.
	assert.Equal(t, "^8.2", descriptor.VersionConstraint)
	assert.Contains(t, descriptor.Extensions, "gd")
	assert.Contains(t, descriptor.Extensions, "mbstring")
	assert.True(t, descriptor.Database.Required)
	assert.Equal(t, domain.DatabaseEngineMySQL, descriptor.Database.Engine)
	assert.True(t, descriptor.Database.NeedsMigrations)
	assert.Equal(t, domain.BuildProcessComposer, descriptor.BuildProcess)
	assert.Equal(t, "/up", descriptor.HealthCheckPath)
	assert.Equal(t, "public/index.php", descriptor.EntryPoint)
}

func TestDetectWordPress(t *testing.T) {
	tree := fstest.MapFS{
		"wp-config.php": file("<?php define('DB_NAME', 'wp');"),
		"index.php":     file("<?php"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeWordPress, descriptor.AppType)
	assert.True(t, descriptor.Database.Required)
	assert.Contains(t, descriptor.Extensions, "mysqli")
	assert.Equal(t, domain.BuildProcessNone, descriptor.BuildProcess)
}

func TestDetectSymfony(t *testing.T) {
	tree := fstest.MapFS{
		"symfony.lock":     file("{}"),
		"composer.json":    file(`{"require": {"php": ">=8.1"}}`),
		"public/index.php": file("<?php"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeSymfony, descriptor.AppType)
	assert.False(t, descriptor.Database.Required)
	assert.Equal(t, domain.BuildProcessComposer, descriptor.BuildProcess)
}

func TestDetectGenericPHP(t *testing.T) {
	tree := fstest.MapFS{
		"index.php": file("<?php echo 'hi';"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypePHP, descriptor.AppType)
	assert.False(t, descriptor.Database.Required)
	assert.Equal(t, "index.php", descriptor.EntryPoint)
}

func TestDetectStatic(t *testing.T) {
	tree := fstest.MapFS{
		"index.html":  file("<html></html>"),
		"css/app.css": file("body {}"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeStatic, descriptor.AppType)
	assert.Equal(t, domain.BuildProcessNone, descriptor.BuildProcess)
	assert.False(t, descriptor.AppType.RequiresServerProcess())
}

func TestDetectManifestRefinesGenericPHP(t *testing.T) {
	// No artisan file, but the manifest declares the framework.
	tree := fstest.MapFS{
		"composer.json": file(`{"require": {"laravel/framework": "^10.0"}}`),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)
	assert.Equal(t, domain.AppTypeLaravel, descriptor.AppType)
}

func TestDetectComposeDatabaseProbe(t *testing.T) {
	tree := fstest.MapFS{
		"index.php": file("<?php"),
		"docker-compose.yml": file(`
services:
  app:
    image: php:8.2-fpm
  db:
    image: mysql:8.0
`),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypePHP, descriptor.AppType)
	assert.True(t, descriptor.Database.Required)
	assert.Equal(t, domain.DatabaseEngineMySQL, descriptor.Database.Engine)
}

func TestDetectComposeNeverOverridesFrameworkDatabase(t *testing.T) {
	tree := fstest.MapFS{
		"artisan":       file("#!/usr/bin/env php"),
		"composer.json": file(`{"require": {"php": "^8.2"}}`),
		"docker-compose.yml": file(`
services:
  db:
    image: postgres:16
`),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	// The framework signature already requires mysql.
	assert.Equal(t, domain.DatabaseEngineMySQL, descriptor.Database.Engine)
}

func TestDetectFrameworkHint(t *testing.T) {
	descriptor, err := Detect(fstest.MapFS{}, Hints{Framework: "Laravel"})
	require.NoError(t, err)
	assert.Equal(t, domain.AppTypeLaravel, descriptor.AppType)
}

func TestDetectProjectFileOverrides(t *testing.T) {
	tree := fstest.MapFS{
		".codeflowops.yml": file("type: static\nhealth_check_path: /healthz\n"),
		"index.html":       file("<html></html>"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeStatic, descriptor.AppType)
	assert.Equal(t, "/healthz", descriptor.HealthCheckPath)
}

func TestDetectRejectsForeignMarker(t *testing.T) {
	tree := fstest.MapFS{
		"go.mod":    file("module example.com/api"),
		"index.php": file("<?php"),
	}

	_, err := Detect(tree, Hints{})
	assert.ErrorIs(t, err, domain.ErrNoDescriptor)
}

func TestDetectRejectsForeignDominance(t *testing.T) {
	tree := fstest.MapFS{
		"index.html": file("<html></html>"),
	}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		tree[name+".py"] = file("print()")
	}

	_, err := Detect(tree, Hints{})
	assert.ErrorIs(t, err, domain.ErrNoDescriptor)
}

func TestDetectForeignMarkerDoesNotVetoFrameworks(t *testing.T) {
	// Specific framework markers are trusted even next to a Gemfile.
	tree := fstest.MapFS{
		"Gemfile":       file("source 'https://rubygems.org'"),
		"artisan":       file("#!/usr/bin/env php"),
		"composer.json": file(`{}`),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)
	assert.Equal(t, domain.AppTypeLaravel, descriptor.AppType)
}

func TestDetectEmptyTree(t *testing.T) {
	_, err := Detect(fstest.MapFS{}, Hints{})
	assert.ErrorIs(t, err, domain.ErrNoDescriptor)
}

func TestDetectMalformedManifestIsIgnored(t *testing.T) {
	tree := fstest.MapFS{
		"artisan":       file("#!/usr/bin/env php"),
		"composer.json": file("{not json"),
	}

	descriptor, err := Detect(tree, Hints{})
	require.NoError(t, err)

	assert.Equal(t, domain.AppTypeLaravel, descriptor.AppType)
	assert.Equal(t, ">=8.1", descriptor.VersionConstraint)
}
