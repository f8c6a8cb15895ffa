// The main package for the concurso-crawler executable.
package main

import (
	"github.com/JakeFAU/concurso-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
