// ./main.go
package main

import (
	"github.com/nkrsz/renewctl/cmd"
)

// main is the entry point for the renewctl application. All command-line
// parsing, configuration and execution lives in the cmd package.
func main() {
	cmd.Execute()
}
