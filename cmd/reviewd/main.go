// Package main provides the entry point for the PR review service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reviewd",
	Short: "Asynchronous pull request review service",
	Long:  "reviewd accepts pull request and commit references over a REST API, runs an LLM-backed review pipeline against the code host, and serves progress and results for polling.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
