package main

import (
	"os"

	"github.com/nixxel-company-limited/todo-receipts/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
