// ABOUTME: Build identity constants for the bloom audio stack
// ABOUTME: Reported at startup and in the soak runner banner
package version

// Version is the bloom-go release. Overridden at build time via
// -ldflags "-X ...internal/version.Version=x.y.z".
var Version = "0.1.0"

const (
	// Product names the board family this stack targets.
	Product = "Bloom Audio"

	// Manufacturer appears in logs alongside the product name.
	Manufacturer = "Bloom Audio Project"
)
