package main

import "github.com/agentsea/turnengine/cmd"

func main() {
	cmd.Execute()
}
