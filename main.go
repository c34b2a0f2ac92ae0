package main

import "github.com/telebill/call-billing/cmd"

func main() {
	cmd.Execute()
}
