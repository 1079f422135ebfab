// Package main provides the entry point for diibridge.
// diibridge connects an RVFI-DII test generator to a cycle-stepped core
// model.
//
// For the full CLI, use: go run ./cmd/diibridge
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("diibridge - RVFI-DII co-simulation bridge")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: diibridge <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve      Wait for a test generator and run its traces")
	fmt.Println("  config     Print the effective configuration as JSON")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/diibridge --help' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/diibridge' instead.")
	}
}
