package bundle

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/hugojosefson/polymer/pkg/buildsys"
)

type packageMeta struct {
	Version string `json:"version"`
}

// ReadPackageVersion returns the version field of a package.json style file. The version
// has to be a valid semantic version.
func ReadPackageVersion(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to read %s", path)
	}

	var meta packageMeta
	err = json.Unmarshal(content, &meta)
	if err != nil {
		return "", eris.Wrapf(err, "failed to parse %s", path)
	}

	if meta.Version == "" {
		return "", eris.Errorf("%s has no version", path)
	}

	_, err = semver.NewVersion(meta.Version)
	if err != nil {
		return "", eris.Wrapf(err, "%s contains an invalid version %s", path, meta.Version)
	}

	return meta.Version, nil
}

// GitRevision returns the abbreviated hash of the commit checked out in dir
func GitRevision(ctx context.Context, dir string, env []string) (string, error) {
	out, err := buildsys.Capture(ctx, dir, env, "git rev-parse --short HEAD")
	if err != nil {
		return "", eris.Wrap(err, "failed to determine the git revision")
	}

	rev := strings.TrimSpace(out)
	if rev == "" {
		return "", eris.New("git did not return a revision")
	}

	buildsys.Logger(ctx).Debug().Str("dir", dir).Str("revision", rev).Msg("Found git revision")
	return rev, nil
}

var revisionPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// DevVersion appends revision to version, e.g. 1.2.3 and abc1234 become 1.2.3-abc1234. The result
// isn't necessarily a valid semantic version since git may return a hash like 0123456 which semver
// doesn't accept as a prerelease identifier.
func DevVersion(version, revision string) (string, error) {
	if revision == "" {
		return version, nil
	}

	if !revisionPattern.MatchString(revision) {
		return "", eris.Errorf("%s is not a git revision", revision)
	}
	return version + "-" + revision, nil
}
