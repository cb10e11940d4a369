package detect

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

func TestParseComposerManifest(t *testing.T) {
	tree := fstest.MapFS{
		"composer.json": file(`{
			"require": {
				"php": ">=8.0 <8.3",
				"ext-intl": "*",
				"ext-GD": "*",
				"symfony/framework-bundle": "^6.4",
				"monolog/monolog": "^3.0"
			},
			"require-dev": {
				"phpunit/phpunit": "^10"
			}
		}`),
	}

	req := parseComposerManifest(tree)

	assert.True(t, req.HasManifest)
	assert.Equal(t, ">=8.0 <8.3", req.VersionConstraint)
	assert.Equal(t, []string{"gd", "intl"}, req.Extensions)
	assert.Equal(t, domain.AppTypeSymfony, req.Framework)
}

func TestParseComposerManifestMissing(t *testing.T) {
	req := parseComposerManifest(fstest.MapFS{})
	assert.False(t, req.HasManifest)
}

func TestMoreRestrictiveConstraint(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{"empty a", "", "^8.1", "^8.1"},
		{"empty b", ">=7.4", "", ">=7.4"},
		{"b admits fewer", ">=8.1", "^8.2", "^8.2"},
		{"a admits fewer", "^8.2", ">=7.4", "^8.2"},
		{"tie prefers manifest", ">=8.1", ">=8.1", ">=8.1"},
		{"unparsable admits all", "not-a-constraint", "^8.2", "^8.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MoreRestrictiveConstraint(tt.a, tt.b))
		})
	}
}

func TestNormalizeConstraint(t *testing.T) {
	// Composer's single-pipe OR becomes the double-pipe form semver accepts.
	assert.Equal(t, "^7.4 || ^8.0", normalizeConstraint("^7.4 | ^8.0"))
	assert.Equal(t, "^7.4 || ^8.0", normalizeConstraint("^7.4 || ^8.0"))
}

func TestDatabaseEngineForImage(t *testing.T) {
	tests := []struct {
		image string
		want  domain.DatabaseEngine
	}{
		{"mysql:8.0", domain.DatabaseEngineMySQL},
		{"mariadb", domain.DatabaseEngineMySQL},
		{"docker.io/library/postgres:16", domain.DatabaseEnginePostgres},
		{"redis:7", domain.DatabaseEngineNone},
		{"", domain.DatabaseEngineNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, databaseEngineForImage(tt.image), tt.image)
	}
}
