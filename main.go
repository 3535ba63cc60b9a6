// Ontograph - Read-only Gene Ontology graph engine.
//
// Ontograph loads an OBO ontology release into an immutable in-memory
// multigraph and serves hierarchy queries over a CLI and an MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/rcsb/ontograph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
