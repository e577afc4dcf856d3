package main

import "github.com/KaramelBytes/avalia-cli/cmd"

func main() {
	cmd.Execute()
}
