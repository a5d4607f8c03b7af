package main

import (
	"log"

	"github.com/printdeck/fulfillment/cmd/deckctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
