package main

import "go-case-tracker/cmd/case-tracker/cmd"

func main() {
	cmd.Execute()
}
