// Command constellation-cli runs the similarity pipeline over a notes file
// without starting the service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
