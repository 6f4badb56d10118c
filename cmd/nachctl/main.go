package main

import (
	"os"

	"nach-reprocessing/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
