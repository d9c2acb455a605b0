package main

import "github.com/guimove/vmplacer/cmd"

func main() {
	cmd.Execute()
}
