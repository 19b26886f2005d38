package build

import "fmt"

const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 1

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 4

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0
)

// Commit stores the current commit hash of this build. This should be set
// using -ldflags during compilation.
var Commit string

// Version returns the application version as a properly formed string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
}

// UserAgent returns the string sent as the User-Agent header on outbound HTTP
// requests.
func UserAgent() string {
	return "trackerup/" + Version()
}
