package main

import (
	"os"

	"github.com/alvarorichard/animebinge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
