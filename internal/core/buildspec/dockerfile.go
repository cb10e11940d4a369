package buildspec

import (
	"fmt"
	"strings"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Container Definition
// =============================================================================

// ContainerPort is the port every built image listens on. The nginx front
// terminates HTTP there and forwards dynamic requests to the runtime.
const ContainerPort = 8080

// ContainerDefinition is the rendered build input for the image builder.
type ContainerDefinition struct {
	Dockerfile     string
	RuntimeVersion string
	BaseImage      string
	// Aux files rendered next to the Dockerfile in the build context.
	Files map[string]string
	// Warnings collected while rendering (e.g. constraint fallback).
	Warnings []string
	// DegradedBase marks that the intended base image was replaced with the
	// stock default. It must never be set silently; WithFallbackBase records
	// the substitution as a warning too.
	DegradedBase bool
}

// WithFallbackBase re-renders the definition on the stock default runtime
// image. The result is explicitly flagged degraded.
func (d ContainerDefinition) WithFallbackBase() ContainerDefinition {
	fallback := RuntimeImageTag(DefaultRuntimeVersion)
	if d.BaseImage == "" || d.BaseImage == fallback {
		return d
	}
	out := d
	out.Dockerfile = strings.Replace(d.Dockerfile, "FROM "+d.BaseImage, "FROM "+fallback, 1)
	out.BaseImage = fallback
	out.RuntimeVersion = DefaultRuntimeVersion
	out.DegradedBase = true
	out.Warnings = append(append([]string(nil), d.Warnings...), fmt.Sprintf(
		"base image %s unavailable; substituted stock image %s", d.BaseImage, fallback))
	return out
}

// Render produces the container definition for a descriptor. The image
// embeds a process supervisor, the application runtime, and an nginx front
// that exposes the descriptor's health check path.
func Render(descriptor *domain.RequirementsDescriptor) ContainerDefinition {
	if descriptor.AppType == domain.AppTypeStatic {
		return renderStatic(descriptor)
	}
	return renderPHP(descriptor)
}

func renderPHP(descriptor *domain.RequirementsDescriptor) ContainerDefinition {
	version, fellBack := ResolveRuntimeVersion(descriptor.VersionConstraint)
	def := ContainerDefinition{
		RuntimeVersion: version,
		BaseImage:      RuntimeImageTag(version),
		Files: map[string]string{
			"nginx.conf":       renderNginxConf(descriptor),
			"supervisord.conf": supervisordConf,
		},
	}
	if fellBack {
		def.Warnings = append(def.Warnings, fmt.Sprintf(
			"version constraint %q could not be satisfied; using default runtime %s",
			descriptor.VersionConstraint, version))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", def.BaseImage)

	packages := append([]string{"nginx", "supervisor"}, SystemPackages(descriptor.Extensions)...)
	fmt.Fprintf(&b, "RUN apt-get update && apt-get install -y --no-install-recommends \\\n    %s \\\n    && rm -rf /var/lib/apt/lists/*\n\n",
		strings.Join(packages, " \\\n    "))

	if exts := InstallableExtensions(descriptor.Extensions); len(exts) > 0 {
		if hasExtension(exts, "gd") {
			b.WriteString("RUN docker-php-ext-configure gd --with-freetype --with-jpeg\n")
		}
		fmt.Fprintf(&b, "RUN docker-php-ext-install -j$(nproc) %s\n\n", strings.Join(exts, " "))
	}

	if descriptor.BuildProcess == domain.BuildProcessComposer {
		b.WriteString("COPY --from=composer:2 /usr/bin/composer /usr/bin/composer\n\n")
	}

	b.WriteString("WORKDIR /var/www/app\nCOPY . /var/www/app\n\n")

	// Build commands run in order. Non-critical steps continue past failure;
	// the builder records their failure as a warning from the build output.
	for _, cmd := range descriptor.BuildCommands {
		if cmd.Critical {
			fmt.Fprintf(&b, "RUN %s\n", cmd.Command)
		} else {
			fmt.Fprintf(&b, "RUN %s || echo \"codeflowops: non-critical step failed: %s\"\n", cmd.Command, cmd.Command)
		}
	}
	if len(descriptor.BuildCommands) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("COPY nginx.conf /etc/nginx/nginx.conf\n")
	b.WriteString("COPY supervisord.conf /etc/supervisor/conf.d/supervisord.conf\n")
	b.WriteString("RUN chown -R www-data:www-data /var/www/app\n\n")
	fmt.Fprintf(&b, "EXPOSE %d\n", ContainerPort)
	b.WriteString("CMD [\"supervisord\", \"-n\", \"-c\", \"/etc/supervisor/conf.d/supervisord.conf\"]\n")

	def.Dockerfile = b.String()
	return def
}

func renderStatic(descriptor *domain.RequirementsDescriptor) ContainerDefinition {
	def := ContainerDefinition{
		BaseImage: StaticImageTag,
		Files: map[string]string{
			"nginx.conf": renderNginxConf(descriptor),
		},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", def.BaseImage)
	b.WriteString("COPY . /usr/share/nginx/html\n")
	b.WriteString("COPY nginx.conf /etc/nginx/nginx.conf\n\n")
	fmt.Fprintf(&b, "EXPOSE %d\n", ContainerPort)
	b.WriteString("CMD [\"nginx\", \"-g\", \"daemon off;\"]\n")

	def.Dockerfile = b.String()
	return def
}

// =============================================================================
// Aux File Templates
// =============================================================================

func renderNginxConf(descriptor *domain.RequirementsDescriptor) string {
	docRoot := "/var/www/app"
	if dir := entryPointDir(descriptor.EntryPoint); dir != "" {
		docRoot = docRoot + "/" + dir
	}
	if descriptor.AppType == domain.AppTypeStatic {
		docRoot = "/usr/share/nginx/html"
	}

	var b strings.Builder
	b.WriteString("worker_processes auto;\nevents { worker_connections 1024; }\n\nhttp {\n")
	b.WriteString("    include /etc/nginx/mime.types;\n    sendfile on;\n\n    server {\n")
	fmt.Fprintf(&b, "        listen %d;\n", ContainerPort)
	fmt.Fprintf(&b, "        root %s;\n", docRoot)
	b.WriteString("        index index.php index.html;\n\n")

	// The health path must always answer, even before the app warms up.
	// For static sites with "/" as the health path the root location already
	// covers it.
	if hp := healthPath(descriptor); hp != "/" || descriptor.AppType != domain.AppTypeStatic {
		fmt.Fprintf(&b, "        location = %s {\n", hp)
		b.WriteString("            access_log off;\n")
		if descriptor.AppType == domain.AppTypeStatic {
			b.WriteString("            return 200 'ok';\n")
		} else {
			b.WriteString("            try_files $uri /index.php?$query_string;\n")
		}
		b.WriteString("        }\n\n")
	}

	if descriptor.AppType != domain.AppTypeStatic {
		b.WriteString("        location / {\n            try_files $uri $uri/ /index.php?$query_string;\n        }\n\n")
		b.WriteString("        location ~ \\.php$ {\n")
		b.WriteString("            fastcgi_pass 127.0.0.1:9000;\n")
		b.WriteString("            fastcgi_index index.php;\n")
		b.WriteString("            include fastcgi_params;\n")
		b.WriteString("            fastcgi_param SCRIPT_FILENAME $document_root$fastcgi_script_name;\n")
		b.WriteString("        }\n")
	} else {
		b.WriteString("        location / {\n            try_files $uri $uri/ =404;\n        }\n")
	}

	b.WriteString("    }\n}\n")
	return b.String()
}

const supervisordConf = `[supervisord]
nodaemon=true
logfile=/dev/null
logfile_maxbytes=0

[program:php-fpm]
command=php-fpm -F
autorestart=true
stdout_logfile=/dev/stdout
stdout_logfile_maxbytes=0
stderr_logfile=/dev/stderr
stderr_logfile_maxbytes=0

[program:nginx]
command=nginx -g "daemon off;"
autorestart=true
stdout_logfile=/dev/stdout
stdout_logfile_maxbytes=0
stderr_logfile=/dev/stderr
stderr_logfile_maxbytes=0
`

// =============================================================================
// Helpers
// =============================================================================

func healthPath(descriptor *domain.RequirementsDescriptor) string {
	if descriptor.HealthCheckPath == "" {
		return "/"
	}
	return descriptor.HealthCheckPath
}

func entryPointDir(entryPoint string) string {
	if idx := strings.LastIndex(entryPoint, "/"); idx > 0 {
		return entryPoint[:idx]
	}
	return ""
}

func hasExtension(extensions []string, name string) bool {
	for _, e := range extensions {
		if e == name {
			return true
		}
	}
	return false
}
