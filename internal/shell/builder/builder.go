// Package builder turns a rendered container definition plus the application
// source tree into a pushed image. This is part of the Imperative Shell - it
// drives the Docker daemon and the image registry.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/buildspec"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// DefaultBuildTimeout bounds one image build.
const DefaultBuildTimeout = 20 * time.Minute

// AuthSource supplies fresh registry credentials. Push failures trigger
// exactly one refresh through this before surfacing a build failure.
type AuthSource func(ctx context.Context) (*cloud.RegistryAuth, error)

// Request describes one image build.
type Request struct {
	// Source is the application source tree, copied into the build context.
	Source fs.FS

	// Definition is the rendered container definition.
	Definition *buildspec.ContainerDefinition

	// ImageRef is the full registry reference to tag and push.
	ImageRef string
}

// Builder builds and pushes application images.
type Builder struct {
	cli     *client.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a builder connected to the local Docker daemon. An empty host
// uses the environment's default.
func New(host string, logger *slog.Logger) (*Builder, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}

	return &Builder{
		cli:     cli,
		timeout: DefaultBuildTimeout,
		logger:  logger.With("component", "builder"),
	}, nil
}

// Close releases the daemon connection.
func (b *Builder) Close() error {
	return b.cli.Close()
}

// Build assembles the build context and runs the image build. The result
// carries the daemon's output lines and any warnings from the definition
// (runtime fallback, degraded base image).
func (b *Builder) Build(ctx context.Context, req Request) (*domain.BuildResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	def := *req.Definition
	result, err := b.buildOnce(ctx, req.ImageRef, req.Source, def)
	if err == nil {
		return result, nil
	}

	// An unavailable base image may be substituted with the stock default,
	// but only flagged: the result is degraded, never a silent replacement.
	if !baseImageUnavailable(err, def.BaseImage) {
		return result, err
	}
	fallback := def.WithFallbackBase()
	if fallback.BaseImage == def.BaseImage {
		return result, err
	}

	b.logger.Warn("base image unavailable, retrying on stock image",
		"intended", def.BaseImage, "fallback", fallback.BaseImage)
	result, err = b.buildOnce(ctx, req.ImageRef, req.Source, fallback)
	if err != nil {
		return result, err
	}
	return result, nil
}

func (b *Builder) buildOnce(ctx context.Context, imageRef string, source fs.FS, def buildspec.ContainerDefinition) (*domain.BuildResult, error) {
	result := &domain.BuildResult{
		ImageRef: imageRef,
		Warnings: append([]string(nil), def.Warnings...),
		Degraded: def.DegradedBase,
	}

	buildCtx, err := buildContext(source, &def)
	if err != nil {
		return result, domain.NewPipelineError(domain.ErrKindBuildFailure, "build_context", err)
	}

	resp, err := b.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{imageRef},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return result, domain.NewPipelineError(domain.ErrKindBuildFailure, "image_build", err)
	}
	defer resp.Body.Close()

	logs, err := drainBuildOutput(resp.Body)
	result.Logs = logs
	if err != nil {
		return result, domain.NewPipelineError(domain.ErrKindBuildFailure, "image_build", err).
			WithHint("inspect the build log for the failing instruction")
	}

	result.Success = true
	b.logger.Info("image built", "image", imageRef, "log_lines", len(logs))
	return result, nil
}

// baseImageUnavailable reports whether the build error looks like a failed
// pull of the given base image.
func baseImageUnavailable(err error, baseImage string) bool {
	if err == nil || baseImage == "" {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, baseImage) && !strings.Contains(msg, "FROM") {
		return false
	}
	return strings.Contains(msg, "pull access denied") ||
		strings.Contains(msg, "manifest unknown") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "failed to resolve")
}

// Push uploads the image. A failed push refreshes the registry credential
// through the auth source and retries exactly once.
func (b *Builder) Push(ctx context.Context, imageRef string, auth AuthSource) error {
	cred, err := auth(ctx)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindBuildFailure, "registry_auth", err)
	}

	pushErr := b.pushOnce(ctx, imageRef, cred)
	if pushErr == nil {
		return nil
	}

	b.logger.Warn("image push failed, refreshing registry credential", "image", imageRef, "error", pushErr)
	cred, err = auth(ctx)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindBuildFailure, "registry_auth", err)
	}
	if err := b.pushOnce(ctx, imageRef, cred); err != nil {
		return domain.NewPipelineError(domain.ErrKindBuildFailure, "image_push", err).
			WithHint("verify the registry exists and the supplied credentials may push to it")
	}
	return nil
}

func (b *Builder) pushOnce(ctx context.Context, imageRef string, cred *cloud.RegistryAuth) error {
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      cred.Username,
		Password:      cred.Password,
		ServerAddress: cred.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}

	resp, err := b.cli.ImagePush(ctx, imageRef, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return err
	}
	defer resp.Close()

	if _, err := drainBuildOutput(resp); err != nil {
		return err
	}
	b.logger.Info("image pushed", "image", imageRef)
	return nil
}

// drainBuildOutput consumes the daemon's JSON message stream, collecting
// human-readable lines and surfacing the first embedded error.
func drainBuildOutput(r io.Reader) ([]string, error) {
	var logs []string
	dec := json.NewDecoder(r)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return logs, nil
			}
			return logs, fmt.Errorf("decode daemon output: %w", err)
		}
		if msg.Error != "" {
			return logs, errors.New(msg.Error)
		}
		if line := strings.TrimRight(msg.Stream, "\n"); line != "" {
			logs = append(logs, line)
		} else if msg.Status != "" {
			logs = append(logs, msg.Status)
		}
	}
}
