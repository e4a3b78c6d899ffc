package main

import "github.com/mirrorget/mirrorget/cmd"

func main() {
	cmd.Execute()
}
