package main

import "github.com/MatthiasKunnen/applock/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
