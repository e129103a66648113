package main

import (
	"github.com/joho/godotenv"

	"github.com/rajvveer/careOps/cmd"
)

func main() {
	// A missing .env is the normal production case.
	_ = godotenv.Load()
	cmd.Execute()
}
