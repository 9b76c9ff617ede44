package main

import "github.com/icco/oscmidi/cmd"

func main() {
	cmd.Execute()
}
