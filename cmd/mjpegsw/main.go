package main

import "github.com/mjpegsw/mjpegsw/cmd/mjpegsw/commands"

func main() {
	commands.Execute()
}
