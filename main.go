package main

import "m4a-extractor/cmd"

func main() {
	cmd.Execute()
}
