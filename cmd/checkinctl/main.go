package main

import "github.com/gatepass/server/internal/cli"

func main() {
	cli.Execute()
}
