package main

import "github.com/centsible/centsible/cmd/centsiblectl/cmd"

func main() {
	cmd.Execute()
}
