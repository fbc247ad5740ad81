// Package version holds the module version reported by binaries.
package version

// Version is the current release version. Overridable at build time:
//
//	go build -ldflags "-X github.com/philips-internal/emr-mongobee/pkg/version.Version=1.2.3"
var Version = "0.1.0"
