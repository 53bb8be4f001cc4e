package main

import "github.com/mvp-joe/xvfb-supervisor/internal/cli"

func main() {
	cli.Execute()
}
