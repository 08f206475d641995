package main

import "candlecore/internal/cmd"

func main() {
	cmd.Execute()
}
