package main

import "hcahps/cmd"

func main() {
	cmd.Execute()
}
