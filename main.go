// The main package for the oab-sync executable.
package main

import (
	"github.com/JakeFAU/oab-process-sync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
