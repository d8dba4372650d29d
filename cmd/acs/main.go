// Package main is the entry point for the acs CLI binary.
package main

import (
	"os"

	cli "github.com/JoshuaRamirez/ACS-sub004/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
