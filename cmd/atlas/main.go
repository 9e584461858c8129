package main

import "github.com/mvp-joe/project-atlas/internal/cli"

func main() {
	cli.Execute()
}
