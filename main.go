package main

import "github.com/dotside-studios/davi-ndef-viewer/cmd"

func main() {
	cmd.Execute()
}
