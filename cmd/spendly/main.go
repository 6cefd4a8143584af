package main

import (
	"os"

	"github.com/agbanzy/Spendly-v4--sub000/cmd/spendly/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
