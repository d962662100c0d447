// Package version carries build metadata stamped in with -ldflags.
package version

var (
	// Version is the release version of the cavesweep binary.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp (RFC 3339).
	BuildTime = "unknown"
)

// String formats the build metadata for CLI output.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
