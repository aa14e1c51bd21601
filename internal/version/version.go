// ABOUTME: Build and product identification
// ABOUTME: Reported in handshakes, logs and the CLI --version flag
package version

const (
	Product      = "emuaudio"
	Manufacturer = "harperreed"
)

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.1.0"

// String returns "product version"
func String() string {
	return Product + " " + Version
}
