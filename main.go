package main

import "github.com/agentic-research/srcmap/cmd"

func main() {
	cmd.Execute()
}
