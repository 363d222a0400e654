//go:build !unix

package daemon

import "os"

// Without flock the PID file alone marks the instance.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
