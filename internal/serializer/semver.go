package serializer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// semverPattern matches MAJOR.MINOR.PATCH with no prerelease or build suffix.
// Template versions and compatibility bounds must all match it.
var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// IsValidSemVer reports whether v is a well-formed MAJOR.MINOR.PATCH version.
func IsValidSemVer(v string) bool {
	return semverPattern.MatchString(v)
}

// CompareSemVer compares two well-formed semantic versions numerically,
// returning -1, 0 or 1.
func CompareSemVer(a, b string) int {
	as := strings.SplitN(a, ".", 3)
	bs := strings.SplitN(b, ".", 3)
	for i := 0; i < 3; i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	return 0
}

func validateSemVerField(field, value string) error {
	if value == "" {
		return &SchemaError{Field: field, Reason: "is required"}
	}
	if !IsValidSemVer(value) {
		return &SchemaError{Field: field, Reason: fmt.Sprintf("'%s' is not a valid MAJOR.MINOR.PATCH version", value)}
	}
	return nil
}
