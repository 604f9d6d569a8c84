package main

import "llmgram/cmd"

func main() {
	cmd.Execute()
}
