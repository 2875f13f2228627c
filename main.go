// The main package for the linkgraph executable.
package main

import "github.com/JakeFAU/linkgraph-crawler/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
