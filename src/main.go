package main

import "github.com/zvdy/dbpulse/src/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
