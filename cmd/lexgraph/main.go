// Command lexgraph builds and maintains the legal knowledge graph.
//
// Usage:
//
//	lexgraph [flags] <command> [args]
//
// Commands:
//
//	ingest     - extract entities and relationships from a chunk file
//	enqueue    - hand a chunk file to the ingest workers
//	chunks     - create review chunks from the graph
//	reviewers  - manage the reviewers counted for the quorum
//	graph      - inspect or wipe the graph
//	catalog    - print or check the type catalog
//
// Configuration is read from the environment and an optional .env file.
package main

import (
	"fmt"
	"os"

	"github.com/OFFIS-RIT/lexgraph/cmd/lexgraph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
