// Package main is the entry point for the passctl CLI.
package main

import "github.com/stagepass/passctl/internal/cli"

func main() {
	cli.Main()
}
