package meta

import (
	"fmt"
	"runtime"
)

// Info describes how a marketdash binary was built. Most of it is injected
// by the Go linker, see the vars below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These are set with the linker -X flag, e.g.
//
//	go build -ldflags "-X github.com/Spinkelben/MarketDash/internal/meta.Version=1.2.0"
var (
	// Version as an arbitrary string
	Version = "dev"

	// Build is the Git sha being built
	Build = "unknown"

	// Branch is the Git branch being built
	Branch = "unknown"

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag lists the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns the build information of the running binary.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}
