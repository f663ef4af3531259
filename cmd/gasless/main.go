package main

import (
	"os"

	"github.com/agentwallet-labs/gasless-cli/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
