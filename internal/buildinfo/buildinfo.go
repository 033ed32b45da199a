// Package buildinfo holds release metadata shared by the CLI and the HTTP surface.
package buildinfo

// Version is the release reported by /version and the version command.
const Version = "1.2.0"
