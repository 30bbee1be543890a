package main

import (
	"log"

	"github.com/elitetrust/stepup-ledger/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("stepup-ledger: %v", err)
	}
}
