package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/openmined/treesync/internal/wireproto"
	"github.com/stretchr/testify/assert"
)

func restoreVars(t *testing.T) {
	t.Helper()
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() { Version, Revision, BuildDate = v, r, d })
}

func TestGet(t *testing.T) {
	restoreVars(t)
	Version, Revision, BuildDate = "1.0.0", "abcdef1234567890-dirty", "2026-01-02T03:04:05Z"

	assert.Equal(t, Info{
		App:       "TreeSync",
		Version:   "1.0.0",
		Revision:  "abcdef1-dirty",
		BuildDate: "2026-01-02T03:04:05Z",
		Protocol:  wireproto.ProtocolVersion,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}, Get())

	assert.Equal(t, "1.0.0 (abcdef1-dirty)", Short())
	assert.Equal(t, "TreeSync 1.0.0 (abcdef1-dirty)", ShortWithApp())
	assert.True(t, strings.HasPrefix(Detailed(), "1.0.0 (abcdef1-dirty; proto 1; go"))
	assert.True(t, strings.HasSuffix(Detailed(), "; 2026-01-02T03:04:05Z)"))
}

func TestShortRevision(t *testing.T) {
	assert.Equal(t, "HEAD", shortRevision("HEAD"))
	assert.Equal(t, "5e23a4b", shortRevision("5e23a4b"))
	assert.Equal(t, "5e23a4b", shortRevision("5e23a4bc0ffee"))
	assert.Equal(t, "5e23a4b-dirty", shortRevision("5e23a4bc0ffee-dirty"))
}

func TestFromBuildInfo(t *testing.T) {
	restoreVars(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	fromBuildInfo("v1.2.3", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2026-01-02T03:04:05Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "abcdef1234567890-dirty", Revision)
	assert.Equal(t, "2026-01-02T03:04:05Z", BuildDate)
}

func TestFromBuildInfo_KeepsLdflags(t *testing.T) {
	restoreVars(t)
	Version, Revision, BuildDate = "2.0.0", "cafe", "yesterday"

	fromBuildInfo("(devel)", map[string]string{"vcs.revision": "beef"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "cafe", Revision)
	assert.Equal(t, "yesterday", BuildDate)
}
