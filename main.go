package main

import (
	"os"

	"github.com/kebairia/walcheck/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
