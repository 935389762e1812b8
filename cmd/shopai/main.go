// Command shopai answers shopping questions from a Postgres product catalog
// using hybrid vector and full-text retrieval. It provides a CLI (via Cobra)
// and an HTTP API with streamed answers.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/shopai-go/cmd/shopai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
