package main

import "imagedupes/cmd"

func main() {
	cmd.Execute()
}
