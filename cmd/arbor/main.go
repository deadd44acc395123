package main

import "github.com/arborsec/arbor/internal/cli"

func main() {
	cli.Execute()
}
