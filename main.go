package main

import "amcam/cmd"

func main() {
	cmd.Execute()
}
