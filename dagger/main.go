// Package main provides a Dagger module for building, testing and publishing
// the guildstats server image and the Lambda bundle.
package main

import (
	"context"
	"dagger/guildstats/internal/dagger"
	"fmt"
	"strings"
)

const goImage = "golang:1.24.2-alpine"

type Guildstats struct{}

// goContainer returns a Go toolchain container with the source mounted and
// module caches attached.
func goContainer(src *dagger.Directory) *dagger.Container {
	return dag.Container().
		From(goImage).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithDirectory("/src", src).
		WithWorkdir("/src").
		WithEnvVariable("CGO_ENABLED", "0")
}

// Test runs the unit tests.
func (m *Guildstats) Test(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
) (string, error) {
	return goContainer(src).
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// BuildContainer creates the server container image.
func (m *Guildstats) BuildContainer(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Platform to build for
	// +optional
	// +default="linux/amd64"
	platform *dagger.Platform,
) (*dagger.Container, error) {
	buildPlatform := dagger.Platform("linux/amd64")
	if platform != nil {
		buildPlatform = *platform
	}

	platformArch, err := dag.Containerd().ArchitectureOf(ctx, buildPlatform)
	if err != nil {
		return nil, fmt.Errorf("failed to get architecture: %w", err)
	}

	buildCtr := goContainer(src).
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("GOARCH", platformArch).
		WithExec([]string{"apk", "add", "--no-cache", "upx", "ca-certificates"}).
		WithExec([]string{"go", "build", "-ldflags=-s -w", "-o", "/src/bin/guildstats", "./cmd/guildstats"}).
		WithExec([]string{"upx", "--best", "--lzma", "/src/bin/guildstats"})

	return dag.Container(dagger.ContainerOpts{Platform: buildPlatform}).
		From("gcr.io/distroless/static-debian12:latest").
		WithFile("/app/bin/guildstats", buildCtr.File("/src/bin/guildstats")).
		WithFile("/etc/ssl/certs/ca-certificates.crt", buildCtr.File("/etc/ssl/certs/ca-certificates.crt")).
		WithWorkdir("/app").
		WithExposedPort(8080).
		WithEntrypoint([]string{"/app/bin/guildstats", "serve"}), nil
}

// BuildLambda creates the zip bundle for the provided.al2023 Lambda runtime.
func (m *Guildstats) BuildLambda(
	// Source code directory
	// +required
	src *dagger.Directory,
	// Architecture to build for ("amd64" or "arm64")
	// +optional
	// +default="arm64"
	arch string,
) *dagger.File {
	if arch == "" {
		arch = "arm64"
	}

	return goContainer(src).
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("GOARCH", arch).
		WithExec([]string{"apk", "add", "--no-cache", "zip"}).
		WithExec([]string{"mkdir", "-p", "/out"}).
		WithExec([]string{"go", "build", "-tags", "lambda.norpc", "-ldflags=-s -w", "-o", "/out/bootstrap", "./cmd/lambda"}).
		WithWorkdir("/out").
		WithExec([]string{"zip", "guildstats-lambda.zip", "bootstrap"}).
		File("/out/guildstats-lambda.zip")
}

// Publish the server container for each requested platform.
func (m *Guildstats) Publish(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Docker image name (e.g. "username/repo:tag")
	// +required
	imageName string,
	// Platforms to build for (comma-separated, e.g. "linux/amd64,linux/arm64")
	// +optional
	// +default="linux/amd64"
	platforms string,
) (string, error) {
	var platformList []dagger.Platform
	if platforms == "" {
		platformList = []dagger.Platform{"linux/amd64"}
	} else {
		for _, p := range strings.Split(platforms, ",") {
			platformList = append(platformList, dagger.Platform(strings.TrimSpace(p)))
		}
	}

	platformVariants := make([]*dagger.Container, 0, len(platformList))
	for _, platform := range platformList {
		container, err := m.BuildContainer(ctx, src, &platform)
		if err != nil {
			return "", fmt.Errorf("failed to build container for %s: %w", platform, err)
		}
		platformVariants = append(platformVariants, container)
	}

	ref, err := dag.Container().Publish(ctx, imageName, dagger.ContainerPublishOpts{
		PlatformVariants: platformVariants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish image: %w", err)
	}

	return ref, nil
}

// Run serves the guild stats with a Redis cache alongside.
func (m *Guildstats) Run(
	// Source code directory
	// +required
	src *dagger.Directory,
	// Guild to serve
	// +required
	guildID string,
	// Bot token
	// +required
	token *dagger.Secret,
) *dagger.Service {
	redis := dag.Container().
		From("redis:7-alpine").
		WithExposedPort(6379).
		AsService()

	return goContainer(src).
		WithExec([]string{"go", "build", "-o", "/src/bin/guildstats", "./cmd/guildstats"}).
		WithServiceBinding("redis", redis).
		WithEnvVariable("DISCORD_GUILD_ID", guildID).
		WithSecretVariable("DISCORD_BOT_TOKEN", token).
		WithEnvVariable("GUILDSTATS_CACHE__TYPE", "redis").
		WithEnvVariable("GUILDSTATS_REDIS__HOST", "redis").
		WithExposedPort(8080).
		AsService(dagger.ContainerAsServiceOpts{Args: []string{"/src/bin/guildstats", "serve"}})
}
