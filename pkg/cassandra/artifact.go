package cassandra

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/embedded-cassandra/pkg/cache"
	"github.com/cuemby/embedded-cassandra/pkg/version"
)

// Distribution is an installed Cassandra ready to run.
type Distribution struct {
	Version version.Version
	Dir     string
}

// Artifact provides a Distribution.
type Artifact interface {
	Distribution(ctx context.Context, c *cache.Cache) (Distribution, error)
}

// ArchiveArtifact is a local distribution archive (.tar.gz, .tgz, .tar or
// .zip), extracted once into the cache.
type ArchiveArtifact struct {
	Version version.Version
	Path    string
}

// Distribution extracts the archive if needed.
func (a ArchiveArtifact) Distribution(ctx context.Context, c *cache.Cache) (Distribution, error) {
	dir, err := c.Ensure(ctx, a.Version, func(context.Context) (string, error) {
		if _, err := os.Stat(a.Path); err != nil {
			return "", fmt.Errorf("archive %s: %w", a.Path, err)
		}
		return a.Path, nil
	})
	if err != nil {
		return Distribution{}, err
	}
	return Distribution{Version: a.Version, Dir: dir}, nil
}

// DirectoryArtifact is an already extracted distribution. Dir may be the
// installation itself or a directory holding exactly one installation.
type DirectoryArtifact struct {
	Version version.Version
	Dir     string
}

// Distribution locates the installation.
func (a DirectoryArtifact) Distribution(context.Context, *cache.Cache) (Distribution, error) {
	if cache.IsInstallation(a.Dir) {
		return Distribution{Version: a.Version, Dir: a.Dir}, nil
	}
	dir, err := cache.FindInstallation(a.Dir)
	if err != nil {
		return Distribution{}, err
	}
	return Distribution{Version: a.Version, Dir: dir}, nil
}

func validateArtifact(a Artifact) error {
	switch a := a.(type) {
	case ArchiveArtifact:
		if a.Version.IsZero() {
			return fmt.Errorf("archive artifact without version")
		}
		if _, err := os.Stat(a.Path); err != nil {
			return fmt.Errorf("archive artifact: %w", err)
		}
	case DirectoryArtifact:
		if a.Version.IsZero() {
			return fmt.Errorf("directory artifact without version")
		}
		info, err := os.Stat(a.Dir)
		if err != nil {
			return fmt.Errorf("directory artifact: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("directory artifact %s is not a directory", a.Dir)
		}
	}
	return nil
}

// artifactVersion returns the version when it is known before resolution.
func artifactVersion(a Artifact) version.Version {
	switch a := a.(type) {
	case ArchiveArtifact:
		return a.Version
	case DirectoryArtifact:
		return a.Version
	default:
		return version.Version{}
	}
}
