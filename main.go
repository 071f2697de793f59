package main

import "github.com/messageapi/apiserver/cmd"

func main() {
	cmd.Execute()
}
