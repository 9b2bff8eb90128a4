package treesync

const version = "0.1.0"

// Version returns the client library version.
func Version() string {
	return version
}
