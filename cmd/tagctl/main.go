// Command tagctl issues bridge calls against a running tagbridge service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tagctl:", err)
		os.Exit(1)
	}
}
