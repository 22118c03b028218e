package main

import (
	"os"

	"github.com/vladislavdragonenkov/coffeeshop/cmd/storefrontctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
