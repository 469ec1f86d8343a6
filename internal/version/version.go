// Package version carries build metadata, overridden at link time.
package version

var (
	Version = "dev"
	Commit  = "none"
)
