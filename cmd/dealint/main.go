package main

import (
	"os"

	"github.com/gnolang/dealint/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
