package main

import (
	"os"

	"autopunch/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(cli.DefaultApp(version), os.Args[1:]))
}
