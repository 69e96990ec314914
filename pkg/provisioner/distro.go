package provisioner

import (
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/spf13/afero"
)

const (
	// DistroAuto detects the distribution from /etc/os-release.
	DistroAuto = "auto"
	// DistroGeneric selects the legacy build without a distribution suffix.
	DistroGeneric = "generic"

	defaultLinuxDistro = "ubuntu2204"
	osReleasePath      = "/etc/os-release"
)

// distroBuild is a Linux target MongoDB publishes archives for, with the
// releases it covers: [min, below).
type distroBuild struct {
	name  string
	rank  int
	min   string
	below string
}

// Newest first within each family.
var distroFamilies = map[string][]distroBuild{
	"ubuntu": {
		{"ubuntu2404", 2404, "8.0.0", ""},
		{"ubuntu2204", 2204, "6.0.4", ""},
		{"ubuntu2004", 2004, "4.4.0", ""},
		{"ubuntu1804", 1804, "4.0.1", "7.0.0"},
		{"ubuntu1604", 1604, "3.2.0", "5.0.0"},
	},
	"debian": {
		{"debian12", 12, "7.0.3", ""},
		{"debian11", 11, "5.0.8", ""},
		{"debian10", 10, "4.2.1", "7.0.0"},
		{"debian92", 9, "3.6.0", "6.0.0"},
	},
	"rhel": {
		{"rhel90", 90, "6.0.4", ""},
		{"rhel80", 80, "4.2.1", ""},
		{"rhel70", 70, "3.2.0", "8.0.0"},
	},
	"amazon": {
		{"amazon2023", 2023, "7.0.0", ""},
		{"amazon2", 2, "4.0.0", ""},
	},
}

// Releases older than this have a generic Linux build.
const lastGenericBelow = "4.1.0"

// SelectDistro returns the distribution suffix to download release for on a
// host identified as distro. It walks from distro towards older builds of the
// same family until one covers release, and falls back to the generic build
// for releases up to 4.0. An empty result means the generic build. Unknown
// families and unparsable releases are returned unchanged.
func SelectDistro(distro, release string) string {
	if distro == "" || distro == DistroGeneric {
		return ""
	}
	family, rank := splitDistro(distro)
	builds, ok := distroFamilies[family]
	if !ok {
		return distro
	}
	if _, err := mongoversion.CompareReleases(release, release); err != nil {
		return distro
	}

	for _, b := range builds {
		if b.name != distro && b.rank > rank {
			continue
		}
		if covers(b, release) {
			return b.name
		}
	}
	if c, _ := mongoversion.CompareReleases(release, lastGenericBelow); c < 0 {
		return ""
	}
	return distro
}

func covers(b distroBuild, release string) bool {
	if c, _ := mongoversion.CompareReleases(release, b.min); c < 0 {
		return false
	}
	if b.below == "" {
		return true
	}
	c, _ := mongoversion.CompareReleases(release, b.below)
	return c < 0
}

// splitDistro turns "ubuntu2204" into ("ubuntu", 2204). Debian point-release
// names such as "debian92" rank by major version.
func splitDistro(distro string) (string, int) {
	i := strings.IndexAny(distro, "0123456789")
	if i < 0 {
		return distro, 0
	}
	family := distro[:i]
	rank, err := strconv.Atoi(distro[i:])
	if err != nil {
		return family, 0
	}
	if family == "debian" && rank >= 90 {
		rank /= 10
	}
	return family, rank
}

// DetectLinuxDistro maps /etc/os-release to a MongoDB distribution suffix,
// such as "ubuntu2204" or "rhel80". Unknown systems get ubuntu2204.
func DetectLinuxDistro(fs afero.Fs) string {
	f, err := fs.Open(osReleasePath)
	if err != nil {
		return defaultLinuxDistro
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return defaultLinuxDistro
	}
	if d := distroFromOSRelease(vars); d != "" {
		return d
	}
	return defaultLinuxDistro
}

func distroFromOSRelease(vars map[string]string) string {
	id := strings.ToLower(vars["ID"])
	like := strings.Fields(strings.ToLower(vars["ID_LIKE"]))
	version := vars["VERSION_ID"]
	major, _, _ := strings.Cut(version, ".")

	switch {
	case id == "ubuntu":
		return "ubuntu" + strings.ReplaceAll(version, ".", "")
	case id == "debian":
		if major == "9" {
			return "debian92"
		}
		return "debian" + major
	case id == "amzn":
		return "amazon" + major
	case id == "rhel" || slices.Contains(like, "rhel") || slices.Contains(like, "centos"):
		return "rhel" + major + "0"
	}
	return ""
}
