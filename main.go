package main

import "github.com/rwelens/rwelens-cli/cmd"

func main() {
	cmd.Execute()
}
