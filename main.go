package main

import "github.com/rincondev/warelay/cmd"

func main() {
	cmd.Execute()
}
