package main

import "github.com/marsik/reid-mine/cmd"

func main() {
	cmd.Execute()
}
