package main

import "github.com/agentic-research/etfkit/cmd"

func main() {
	cmd.Execute()
}
