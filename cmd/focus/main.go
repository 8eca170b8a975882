package main

import (
	"os"

	"github.com/dshills/focus/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
