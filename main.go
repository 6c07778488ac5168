package main

import (
	"Bt1QDJ/cmd"
)

func main() {
	cmd.Execute()
}
