// Package mongoversion resolves MongoDB release identifiers.
//
// A Version is either symbolic (a named, known-good release such as V4_2_0
// or the V7_0 feature line) or generic (an arbitrary release string passed
// through for best-effort download).
package mongoversion

import (
	"sort"
	"strings"
)

// Version identifies a MongoDB release.
type Version struct {
	// Name is the symbolic name, e.g. "V4_2_0". Empty for generic versions.
	Name string
	// Release is the dotted release used for downloads, e.g. "4.2.0".
	Release string
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool {
	return v.Release == ""
}

// IsGeneric reports whether v was not resolved to a known symbolic version.
func (v Version) IsGeneric() bool {
	return v.Name == "" && v.Release != ""
}

func (v Version) String() string {
	if v.Name == "" {
		return v.Release
	}
	return v.Name + " (" + v.Release + ")"
}

// Generic wraps an arbitrary release string verbatim.
func Generic(release string) Version {
	return Version{Release: release}
}

func named(name, release string) Version {
	return Version{Name: name, Release: release}
}

var known = map[string]Version{}

func register(vs ...Version) {
	for _, v := range vs {
		known[v.Name] = v
	}
}

func line(name string, latest Version) Version {
	return named(name, latest.Release)
}

var (
	V3_6_23 = named("V3_6_23", "3.6.23")
	V4_0_28 = named("V4_0_28", "4.0.28")
	V4_2_0  = named("V4_2_0", "4.2.0")
	V4_2_25 = named("V4_2_25", "4.2.25")
	V4_4_29 = named("V4_4_29", "4.4.29")
	V5_0_31 = named("V5_0_31", "5.0.31")
	V6_0_19 = named("V6_0_19", "6.0.19")
	V7_0_14 = named("V7_0_14", "7.0.14")
	V8_0_4  = named("V8_0_4", "8.0.4")

	V3_6 = line("V3_6", V3_6_23)
	V4_0 = line("V4_0", V4_0_28)
	V4_2 = line("V4_2", V4_2_25)
	V4_4 = line("V4_4", V4_4_29)
	V5_0 = line("V5_0", V5_0_31)
	V6_0 = line("V6_0", V6_0_19)
	V7_0 = line("V7_0", V7_0_14)
	V8_0 = line("V8_0", V8_0_4)
)

// Main aliases. Production is the default version.
var (
	Production  = V7_0
	Legacy      = V4_4
	Development = V8_0
)

func init() {
	register(V3_6_23, V4_0_28, V4_2_0, V4_2_25, V4_4_29, V5_0_31, V6_0_19, V7_0_14, V8_0_4)
	register(V3_6, V4_0, V4_2, V4_4, V5_0, V6_0, V7_0, V8_0)
}

// Normalize turns "4.2.0" into "V4_2_0".
func Normalize(s string) string {
	name := strings.ReplaceAll(strings.ToUpper(s), ".", "_")
	if !strings.HasPrefix(name, "V") {
		name = "V" + name
	}
	return name
}

// Lookup returns the symbolic version registered under name.
func Lookup(name string) (Version, bool) {
	v, ok := known[name]
	return v, ok
}

// Parse resolves s to a symbolic version. When s is not known it returns
// Generic(s) and false; it never fails.
func Parse(s string) (Version, bool) {
	if v, ok := alias(s); ok {
		return v, true
	}
	if v, ok := Lookup(Normalize(s)); ok {
		return v, true
	}
	return Generic(s), false
}

func alias(s string) (Version, bool) {
	switch strings.ToUpper(s) {
	case "PRODUCTION":
		return Production, true
	case "LEGACY":
		return Legacy, true
	case "DEVELOPMENT":
		return Development, true
	}
	return Version{}, false
}

// Known returns all symbolic versions ordered by name.
func Known() []Version {
	out := make([]Version, 0, len(known))
	for _, v := range known {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
