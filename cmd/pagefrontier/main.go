// Command pagefrontier is the CLI entry point for inspecting and
// maintaining a pagefrontier store; see internal/cli for the command
// tree.
package main

import "github.com/rohmanhakim/pagefrontier/internal/cli"

func main() {
	cmd.Execute()
}
