package main

import "github.com/adhikar/registry/cmd"

func main() {
	cmd.Execute()
}
