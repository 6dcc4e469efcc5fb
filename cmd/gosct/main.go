package main

import (
	"fmt"
	"os"

	"github.com/foxboron/go-uefi-sct/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gosct:", err)
		os.Exit(1)
	}
}
