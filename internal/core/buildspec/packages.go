package buildspec

import "sort"

// =============================================================================
// Extension -> System Package Table
// =============================================================================

// extensionPackages maps a runtime extension to the Debian packages its
// compilation needs. Unknown extensions are passed through to docker-php-ext
// without system packages rather than failing the build.
var extensionPackages = map[string][]string{
	"gd":        {"libpng-dev", "libjpeg-dev", "libfreetype6-dev"},
	"intl":      {"libicu-dev"},
	"zip":       {"libzip-dev"},
	"curl":      {"libcurl4-openssl-dev"},
	"xml":       {"libxml2-dev"},
	"soap":      {"libxml2-dev"},
	"gmp":       {"libgmp-dev"},
	"ldap":      {"libldap2-dev"},
	"imagick":   {"libmagickwand-dev"},
	"pgsql":     {"libpq-dev"},
	"pdo_pgsql": {"libpq-dev"},
	"xsl":       {"libxslt1-dev"},
	"bz2":       {"libbz2-dev"},
	"oniguruma": {"libonig-dev"},
	"mbstring":  {"libonig-dev"},
}

// builtinExtensions ship with the base image and need no install step.
var builtinExtensions = map[string]bool{
	"json":      true,
	"openssl":   true,
	"pdo":       true,
	"session":   true,
	"tokenizer": true,
	"fileinfo":  true,
	"ctype":     true,
	"filter":    true,
}

// SystemPackages resolves the union of system packages required by the given
// extensions. Output is sorted and de-duplicated.
func SystemPackages(extensions []string) []string {
	set := make(map[string]bool)
	for _, ext := range extensions {
		for _, pkg := range extensionPackages[ext] {
			set[pkg] = true
		}
	}

	packages := make([]string, 0, len(set))
	for pkg := range set {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)
	return packages
}

// InstallableExtensions filters out extensions already present in the base
// image, preserving input order.
func InstallableExtensions(extensions []string) []string {
	var out []string
	for _, ext := range extensions {
		if !builtinExtensions[ext] {
			out = append(out, ext)
		}
	}
	return out
}
