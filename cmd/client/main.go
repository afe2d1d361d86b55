// Package main starts the terminal client.
package main

import "github.com/banuni/haxor-mk2/internal/client/cli"

func main() {
	cli.Execute()
}
