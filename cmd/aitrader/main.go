package main

import "aitrader/internal/cli"

func main() {
	cli.Execute()
}
