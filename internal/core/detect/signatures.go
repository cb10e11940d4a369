package detect

import (
	"io/fs"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Signature Checks
// =============================================================================

// signature is one ordered detection rule. Matches yield a partial
// descriptor which is later merged with manifest-derived requirements.
// Specific framework markers come before generic classification.
type signature struct {
	AppType domain.AppType
	Matches func(tree fs.FS) bool
	Partial func() domain.RequirementsDescriptor
}

// signatures is the ordered check list. Most specific first; the generic PHP
// and static classifications are fallbacks guarded by ecosystem rejection.
var signatures = []signature{
	{
		AppType: domain.AppTypeWordPress,
		Matches: func(tree fs.FS) bool {
			return fileExists(tree, "wp-config.php") ||
				fileExists(tree, "wp-config-sample.php") ||
				(dirExists(tree, "wp-content") && dirExists(tree, "wp-includes"))
		},
		Partial: wordpressPartial,
	},
	{
		AppType: domain.AppTypeLaravel,
		Matches: func(tree fs.FS) bool {
			return fileExists(tree, "artisan") && fileExists(tree, "composer.json")
		},
		Partial: laravelPartial,
	},
	{
		AppType: domain.AppTypeSymfony,
		Matches: func(tree fs.FS) bool {
			return fileExists(tree, "symfony.lock") ||
				(fileExists(tree, "bin/console") && fileExists(tree, "config/bundles.php"))
		},
		Partial: symfonyPartial,
	},
	{
		AppType: domain.AppTypePHP,
		Matches: func(tree fs.FS) bool {
			return fileExists(tree, "composer.json") || fileExists(tree, "index.php") ||
				fileExists(tree, "public/index.php")
		},
		Partial: phpPartial,
	},
	{
		AppType: domain.AppTypeStatic,
		Matches: func(tree fs.FS) bool {
			return fileExists(tree, "index.html") || fileExists(tree, "public/index.html")
		},
		Partial: staticPartial,
	},
}

// =============================================================================
// Partial Descriptors
// =============================================================================

func wordpressPartial() domain.RequirementsDescriptor {
	return domain.RequirementsDescriptor{
		AppType:           domain.AppTypeWordPress,
		VersionConstraint: ">=7.4",
		Extensions:        []string{"mysqli", "gd", "exif", "zip"},
		Database: domain.DatabaseRequirement{
			Engine:   domain.DatabaseEngineMySQL,
			Required: true,
		},
		BuildProcess:    domain.BuildProcessNone,
		HealthCheckPath: "/",
		EntryPoint:      "index.php",
	}
}

func laravelPartial() domain.RequirementsDescriptor {
	return domain.RequirementsDescriptor{
		AppType:           domain.AppTypeLaravel,
		VersionConstraint: ">=8.1",
		Extensions:        []string{"mbstring", "bcmath", "pdo_mysql", "xml"},
		Database: domain.DatabaseRequirement{
			Engine:          domain.DatabaseEngineMySQL,
			Required:        true,
			NeedsMigrations: true,
		},
		BuildProcess: domain.BuildProcessComposer,
		BuildCommands: []domain.BuildCommand{
			{Command: "composer install --no-dev --optimize-autoloader", Critical: true},
			{Command: "php artisan config:cache", Critical: false},
			{Command: "php artisan route:cache", Critical: false},
		},
		HealthCheckPath: "/up",
		EntryPoint:      "public/index.php",
	}
}

func symfonyPartial() domain.RequirementsDescriptor {
	return domain.RequirementsDescriptor{
		AppType:           domain.AppTypeSymfony,
		VersionConstraint: ">=8.1",
		Extensions:        []string{"intl", "mbstring", "xml"},
		Database: domain.DatabaseRequirement{
			Engine:   domain.DatabaseEnginePostgres,
			Required: false,
		},
		BuildProcess: domain.BuildProcessComposer,
		BuildCommands: []domain.BuildCommand{
			{Command: "composer install --no-dev --optimize-autoloader", Critical: true},
			{Command: "php bin/console cache:warmup", Critical: false},
		},
		HealthCheckPath: "/",
		EntryPoint:      "public/index.php",
	}
}

func phpPartial() domain.RequirementsDescriptor {
	return domain.RequirementsDescriptor{
		AppType:           domain.AppTypePHP,
		VersionConstraint: ">=7.4",
		BuildProcess:      domain.BuildProcessNone,
		HealthCheckPath:   "/",
		EntryPoint:        "index.php",
	}
}

func staticPartial() domain.RequirementsDescriptor {
	return domain.RequirementsDescriptor{
		AppType:         domain.AppTypeStatic,
		BuildProcess:    domain.BuildProcessNone,
		HealthCheckPath: "/",
		EntryPoint:      "index.html",
	}
}

// partialForType returns the partial descriptor for a hinted app type.
func partialForType(appType domain.AppType) (domain.RequirementsDescriptor, bool) {
	for _, sig := range signatures {
		if sig.AppType == appType {
			return sig.Partial(), true
		}
	}
	return domain.RequirementsDescriptor{}, false
}

// =============================================================================
// FS Helpers
// =============================================================================

func fileExists(tree fs.FS, path string) bool {
	info, err := fs.Stat(tree, path)
	return err == nil && !info.IsDir()
}

func dirExists(tree fs.FS, path string) bool {
	info, err := fs.Stat(tree, path)
	return err == nil && info.IsDir()
}
