// The main package for the dirgather executable.
package main

import (
	"github.com/JakeFAU/dirgather/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
