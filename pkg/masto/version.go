package masto

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionRange declares the server versions an operation supports.
// Empty bounds are open. Both bounds are inclusive.
type VersionRange struct {
	Since string
	Until string
}

// Since returns a range with only a lower bound.
func Since(version string) VersionRange {
	return VersionRange{Since: version}
}

// Between returns a range with both bounds.
func Between(since, until string) VersionRange {
	return VersionRange{Since: since, Until: until}
}

// String renders the range for error messages.
func (r VersionRange) String() string {
	switch {
	case r.Since != "" && r.Until != "":
		return ">=" + r.Since + ", <=" + r.Until
	case r.Since != "":
		return ">=" + r.Since
	case r.Until != "":
		return "<=" + r.Until
	default:
		return "any"
	}
}

// Check reports whether serverVersion satisfies the range. An empty or
// unparseable server version passes: the server is assumed compatible until
// it says otherwise.
func (r VersionRange) Check(serverVersion string) error {
	if serverVersion == "" {
		return nil
	}

	actual, ok := ParseVersion(serverVersion)
	if !ok {
		return nil
	}

	if r.Since != "" {
		since, ok := ParseVersion(r.Since)
		if ok && actual.LessThan(since) {
			return r.failure(serverVersion)
		}
	}

	if r.Until != "" {
		until, ok := ParseVersion(r.Until)
		if ok && actual.GreaterThan(until) {
			return r.failure(serverVersion)
		}
	}

	return nil
}

func (r VersionRange) failure(actual string) *Error {
	return &Error{
		Kind:            KindValidation,
		Message:         "operation is not supported by this server version",
		RequiredVersion: r.String(),
		ActualVersion:   actual,
	}
}

// rcSuffix matches the "4.0.0rc1" form Mastodon used for release candidates.
var rcSuffix = regexp.MustCompile(`^(\d+\.\d+\.\d+)[a-zA-Z].*$`)

// ParseVersion parses a server version string and reduces it to its
// major.minor.patch core. Pre-release and build metadata are dropped so that
// "4.2.0+glitch" and "4.0.0-rc.1" compare as their release.
func ParseVersion(raw string) (*semver.Version, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		raw = raw[:i]
	}

	if m := rcSuffix.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, false
	}

	core, err := v.SetPrerelease("")
	if err != nil {
		return nil, false
	}

	core, err = core.SetMetadata("")
	if err != nil {
		return nil, false
	}

	return &core, true
}

// compatibleSoftware matches "3.0.0 (compatible; Pleroma 2.4.0)" style versions.
var compatibleSoftware = regexp.MustCompile(`\(compatible;\s*([A-Za-z][\w.-]*)\s+([^)\s]+)\)`)

// DetectSoftware splits an instance version string into the software name,
// the software's own version and the Mastodon API version it is compatible with.
func DetectSoftware(raw string) (software, softwareVersion, apiVersion string) {
	raw = strings.TrimSpace(raw)

	if m := compatibleSoftware.FindStringSubmatch(raw); m != nil {
		apiVersion = strings.TrimSpace(raw[:strings.Index(raw, "(")])

		return strings.ToLower(m[1]), m[2], apiVersion
	}

	return "mastodon", raw, raw
}
