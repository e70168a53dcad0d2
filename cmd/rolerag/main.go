package main

import "rolerag/internal/cli"

func main() {
	cli.Execute()
}
