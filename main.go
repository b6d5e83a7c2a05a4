package main

import "github.com/collabary/payments/cmd"

func main() {
	cmd.Execute()
}
