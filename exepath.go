package sysfail

import "os"

// resolveExePath returns the realpath of the running binary, matching
// what the kernel records as the backing path for the executable's text
// mapping in /proc/self/maps — the comparison EmbeddedSelf performs.
func resolveExePath() (string, error) {
	return os.Readlink("/proc/self/exe")
}
