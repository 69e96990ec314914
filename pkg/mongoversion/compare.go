package mongoversion

import (
	"fmt"
	"strconv"
	"strings"
)

// CompareReleases compares two MongoDB release strings such as "4.2.0" or
// "7.0.0-rc1". It returns -1, 0 or 1, or an error when either is not of the
// form major.minor.patch.
func CompareReleases(a, b string) (int, error) {
	ap, err := parseRelease(a)
	if err != nil {
		return 0, fmt.Errorf("invalid release '%s': %w", a, err)
	}
	bp, err := parseRelease(b)
	if err != nil {
		return 0, fmt.Errorf("invalid release '%s': %w", b, err)
	}

	for i := range 3 {
		if ap[i] < bp[i] {
			return -1, nil
		}
		if ap[i] > bp[i] {
			return 1, nil
		}
	}
	return 0, nil
}

func parseRelease(release string) ([3]int, error) {
	parts := strings.Split(release, ".")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("release must have 3 parts (major.minor.patch), got %d", len(parts))
	}

	var out [3]int
	for i, part := range parts {
		if j := strings.IndexAny(part, "-+"); j >= 0 {
			part = part[:j]
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return [3]int{}, fmt.Errorf("invalid release part '%s'", part)
		}
		out[i] = n
	}
	return out, nil
}
