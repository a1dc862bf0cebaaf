package main

import "cat-map-backend/cmd"

func main() {
	cmd.Run()
}
