package main

import "github.com/ogulcanaydogan/opsalert/internal/cli"

func main() {
	cli.Execute()
}
