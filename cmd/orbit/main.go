package main

import "github.com/ogulcanaydogan/orbit-alerts/internal/cli"

func main() {
	cli.Execute()
}
