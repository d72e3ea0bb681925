package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/courierdesk/courierdesk/internal/cli"
)

func main() {
	// Optional .env for local setups; real env always wins.
	godotenv.Load()

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
