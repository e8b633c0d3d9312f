package main

import (
	"os"

	"voice-quiz-control/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
