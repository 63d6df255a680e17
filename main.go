package main

import "github.com/SisyphusSQ/mxavro/cmd"

func main() {
	cmd.Execute()
}
