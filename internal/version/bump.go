package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// ErrVersionParseFailed wraps a semver.NewVersion failure with the
// offending string.
var ErrVersionParseFailed = errors.New("failed to parse version")

// BumpVersion applies releaseType to version and returns the resulting
// semver string. Custom performs no arithmetic and returns version
// unchanged; callers that want a specific custom version should not call
// this and should set the new version directly on the VersionBump.
func BumpVersion(version string, releaseType ReleaseType) (string, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", errors.Wrapf(ErrVersionParseFailed, "%q: %v", version, err)
	}

	switch releaseType {
	case Major:
		return fmt.Sprintf("%d.%d.%d", v.Major()+1, 0, 0), nil
	case Minor:
		return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor()+1, 0), nil
	case Patch:
		return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()+1), nil
	case Prerelease:
		return bumpPrerelease(v), nil
	case Custom:
		return v.String(), nil
	}
	return "", errors.Errorf("unknown release type %v", releaseType)
}

func bumpPrerelease(v *semver.Version) string {
	if v.Prerelease() == "" {
		return fmt.Sprintf("%d.%d.%d-alpha.0", v.Major(), v.Minor(), v.Patch()+1)
	}

	pre := v.Prerelease()
	idx := strings.LastIndex(pre, ".")
	if idx < 0 {
		return fmt.Sprintf("%d.%d.%d-%s", v.Major(), v.Minor(), v.Patch(), pre)
	}
	prefix, numStr := pre[:idx], pre[idx+1:]
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return fmt.Sprintf("%d.%d.%d-%s", v.Major(), v.Minor(), v.Patch(), pre)
	}
	return fmt.Sprintf("%d.%d.%d-%s.%d", v.Major(), v.Minor(), v.Patch(), prefix, n+1)
}
