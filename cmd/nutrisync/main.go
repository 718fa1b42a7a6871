// Package main provides the entry point for the nutrisync CLI.
package main

import (
	"github.com/colthorp/nutrisync-cli-go/internal/cli"
)

func main() {
	cli.Execute()
}
