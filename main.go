package main

import "github.com/khrees2412/coldreach/cmd"

func main() {
	cmd.Execute()
}
