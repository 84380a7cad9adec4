package main

import (
	"log"

	"wikivault/cmd/wv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
