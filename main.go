package main

import "github.com/KaramelBytes/wwarncalc/cmd"

func main() {
	cmd.Execute()
}
