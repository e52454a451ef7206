package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/alvarorichard/animebinge/internal/session"
)

const (
	Version = "0.3.0"
	Name    = "animebinge"
)

// Revision is set at build time with -ldflags "-X .../version.Revision=<sha>"
var Revision = "dev"

// Backend describes the default session store compiled into the binary
func Backend() string {
	if session.SQLiteAvailable {
		return "with SQLite session store"
	}
	return "without SQLite, using the JSON session store"
}

// Show prints the version line
func Show(w io.Writer) {
	fmt.Fprintf(w, "%s v%s (%s, %s/%s, %s)\n", Name, Version, Revision, runtime.GOOS, runtime.GOARCH, Backend())
}
