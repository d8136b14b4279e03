package main

import (
	"fmt"
	"os"

	"github.com/projtracker/core/cmd/api/commands"
)

// @title Project Tracker API
// @version 1.0
// @description Local API for the active project countdown and delivered history

// @host localhost:3001
// @BasePath /

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
