package main

import "pneumoscan/internal/cli"

func main() {
	cli.Execute()
}
