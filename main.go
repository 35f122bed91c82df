package main

import "github.com/sanix-darker/librarium/cmd"

func main() {
	cmd.Execute()
}
