package main

import (
	"os"

	"fireside/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
