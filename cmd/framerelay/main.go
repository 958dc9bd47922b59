package main

import "github.com/bryanchriswhite/FrameRelay/cmd/framerelay/commands"

func main() {
	commands.Execute()
}
