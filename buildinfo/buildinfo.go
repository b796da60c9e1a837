package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

var (
	buildInfo      *debug.BuildInfo
	buildInfoValid bool
	readBuildInfo  sync.Once

	version     string
	readVersion sync.Once

	// Injected with ldflags at build!
	tag string
)

const (
	repository  = "https://github.com/coder/activity-exporter"
	noVersion   = "v0.0.0"
	develSuffix = "devel"
)

// Info is the serializable form of the build metadata.
type Info struct {
	Version     string    `json:"version"`
	ExternalURL string    `json:"external_url"`
	BuildTime   time.Time `json:"build_time,omitempty"`
	Dev         bool      `json:"dev"`
}

// Current collects the build metadata of the running binary.
func Current() Info {
	t, _ := Time()
	return Info{
		Version:     Version(),
		ExternalURL: ExternalURL(),
		BuildTime:   t,
		Dev:         IsDev(),
	}
}

// Version returns the semantic version of the build.
// Use golang.org/x/mod/semver to compare versions.
func Version() string {
	readVersion.Do(func() {
		revision, valid := revision()
		if valid && len(revision) >= 7 {
			revision = "+" + revision[:7]
		} else {
			revision = ""
		}
		if tag == "" {
			version = noVersion + "-" + develSuffix + revision
			return
		}
		if semver.Build(tag) == "" {
			tag += revision
		}
		version = "v" + strings.TrimPrefix(tag, "v")
	})
	return version
}

// IsDev returns true when this is a development build.
func IsDev() bool {
	return strings.HasPrefix(Version(), noVersion+"-"+develSuffix)
}

// VersionsMatch compares the two versions. It is assumed the versions match if
// the major and the minor versions are equivalent, or if either is a
// development build.
func VersionsMatch(v1, v2 string) bool {
	if strings.HasPrefix(v1, noVersion+"-"+develSuffix) || strings.HasPrefix(v2, noVersion+"-"+develSuffix) {
		return true
	}
	return semver.MajorMinor(v1) == semver.MajorMinor(v2)
}

// ExternalURL returns a URL referencing the current version.
// For production builds, this will link directly to a release.
// For development builds, this will link to a commit.
func ExternalURL() string {
	if !IsDev() {
		return fmt.Sprintf("%s/releases/tag/%s", repository, semver.Canonical(Version()))
	}
	revision, valid := revision()
	if !valid {
		return repository
	}
	return fmt.Sprintf("%s/commit/%s", repository, revision)
}

// Time returns when the Git revision was published.
func Time() (time.Time, bool) {
	value, valid := find("vcs.time")
	if !valid {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// revision returns the Git hash of the build.
func revision() (string, bool) {
	return find("vcs.revision")
}

func find(key string) (string, bool) {
	readBuildInfo.Do(func() {
		buildInfo, buildInfoValid = debug.ReadBuildInfo()
	})
	if !buildInfoValid {
		return "", false
	}
	for _, setting := range buildInfo.Settings {
		if setting.Key != key {
			continue
		}
		return setting.Value, true
	}
	return "", false
}
