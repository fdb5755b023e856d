// Package version provides build version information for the daemon and
// hook binaries. It is a separate package so both cmd entrypoints and the
// cli package can import it without cycles.
package version

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"
