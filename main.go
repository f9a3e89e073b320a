package main

import "github.com/Akashdeep-Patra/gif-pipeline/cmd"

func main() {
	cmd.Execute()
}
