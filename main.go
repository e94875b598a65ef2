// SPDX-License-Identifier: MIT
package main

import (
	"bbbtune/cmd"
	"bbbtune/internal/log"
	"bbbtune/pkg/build"
)

func main() {
	// Development builds run without ldflags; the defaults are fine there.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info incomplete: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
