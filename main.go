// The main package for the reportfinder executable.
package main

import (
	"os"

	"github.com/JakeFAU/report-discovery/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
