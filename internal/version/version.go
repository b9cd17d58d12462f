// Package version reports the treesync build and the wire protocol it speaks.
// Version, Revision and BuildDate may be set with -ldflags -X; otherwise they
// are filled from the module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/openmined/treesync/internal/wireproto"
)

const devVersion = "0.1.0-dev"

var (
	AppName   = "TreeSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info describes a running treesync binary. Peers with a different Protocol
// cannot decode each other's frames.
type Info struct {
	App       string
	Version   string
	Revision  string
	BuildDate string
	Protocol  int
	GoVersion string
	Platform  string
}

func Get() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  shortRevision(Revision),
		BuildDate: BuildDate,
		Protocol:  wireproto.ProtocolVersion,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns `0.1.0 (5e23a4b)`.
func Short() string {
	i := Get()
	return fmt.Sprintf("%s (%s)", i.Version, i.Revision)
}

// ShortWithApp returns `TreeSync 0.1.0 (5e23a4b)`.
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `0.1.0 (5e23a4b; proto 1; go1.23.6; linux/amd64; <date>)`.
func Detailed() string {
	i := Get()
	return fmt.Sprintf("%s (%s; proto %d; %s; %s; %s)",
		i.Version, i.Revision, i.Protocol, i.GoVersion, i.Platform, i.BuildDate)
}

// shortRevision trims a full commit hash, keeping a -dirty suffix.
func shortRevision(rev string) string {
	hash, dirty := strings.CutSuffix(rev, "-dirty")
	if len(hash) > 7 {
		hash = hash[:7]
	}
	if dirty {
		hash += "-dirty"
	}
	return hash
}

// fromBuildInfo fills whatever ldflags left at its default.
func fromBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		fromBuildInfo(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
