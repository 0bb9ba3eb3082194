// SPDX-License-Identifier: MIT

// Command myth2dsv lists recordings on a MythTV backend, prefetches their
// previews and transcodes them into DSV files for handheld playback.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
