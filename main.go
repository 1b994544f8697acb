package main

import "github.com/libra-app/libra-cli/cmd"

func main() {
	cmd.Execute()
}
