package provisioner

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	perrors "github.com/kdeps/embedmongo/pkg/errors"
)

// Platform is an OS/architecture pair as reported by the Go runtime.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform this binary runs on.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (p Platform) String() string {
	return p.OS + "-" + p.Arch
}

// ArchiveName returns the file name of the official .tgz for release.
// Linux builds are per distribution and SelectDistro picks one that was
// published for release; an empty distro selects the legacy generic build.
func (p Platform) ArchiveName(release, distro string) (string, error) {
	switch p.OS {
	case "linux":
		arch, ok := map[string]string{"amd64": "x86_64", "arm64": "aarch64"}[p.Arch]
		if !ok {
			break
		}
		distro = SelectDistro(distro, release)
		if distro == "" {
			return fmt.Sprintf("mongodb-linux-%s-%s.tgz", arch, release), nil
		}
		return fmt.Sprintf("mongodb-linux-%s-%s-%s.tgz", arch, distro, release), nil
	case "darwin":
		arch, ok := map[string]string{"amd64": "x86_64", "arm64": "arm64"}[p.Arch]
		if !ok {
			break
		}
		return fmt.Sprintf("mongodb-macos-%s-%s.tgz", arch, release), nil
	}
	return "", perrors.NewUnsupportedPlatformError(p.OS, p.Arch)
}

// DownloadURL joins base with the platform directory and archive name.
func (p Platform) DownloadURL(base, release, distro string) (string, error) {
	name, err := p.ArchiveName(release, distro)
	if err != nil {
		return "", err
	}
	dir := "linux"
	if p.OS == "darwin" {
		dir = "osx"
	}
	return strings.TrimRight(base, "/") + "/" + dir + "/" + name, nil
}

// ArchivePath is where a downloaded archive is cached.
func ArchivePath(cacheDir, archiveName string) string {
	return filepath.Join(cacheDir, "archives", archiveName)
}

// BinaryPath is where the mongod extracted from archiveName is cached.
func BinaryPath(cacheDir, archiveName string) string {
	return filepath.Join(cacheDir, "mongod", strings.TrimSuffix(archiveName, ".tgz"), "mongod")
}
