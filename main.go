// The main package for the listings executable.
package main

import (
	"github.com/JakeFAU/listing-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
