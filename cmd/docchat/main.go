package main

import (
	"docchat/cmd/docchat/cmd"
)

func main() {
	cmd.Execute()
}
