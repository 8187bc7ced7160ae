package main

import "github.com/hugojosefson/polymer/cmd"

func main() {
	cmd.Execute()
}
