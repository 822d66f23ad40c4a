package main

import "github.com/gregorybednov/ledgerflow/cli"

func main() {
	cli.Execute()
}
