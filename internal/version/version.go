// ABOUTME: Build and product identification
// ABOUTME: Reported in hello messages and the -version flag
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "dev"

const (
	Product      = "pcmrelay"
	Manufacturer = "Resonate Protocol"
)

// String returns "product/version" for hello messages
func String() string {
	return Product + "/" + Version
}
