package main

import "shashin/cmd"

func main() {
	cmd.Execute()
}
