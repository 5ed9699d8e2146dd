package graphlite

// VersionString identifies this release.
const VersionString = "0.1.0"

// Version returns the release version.
func Version() string { return VersionString }
