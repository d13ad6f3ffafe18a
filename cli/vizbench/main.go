package main

import (
	"os"

	vizbenchcmder "github.com/sightlinelabs/vizbench/cmd/vizbench"
)

func main() {
	cmd := vizbenchcmder.NewVizbenchCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
