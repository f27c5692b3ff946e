package main

import "github.com/mvp-joe/watchdog/internal/cli"

func main() {
	cli.Execute()
}
