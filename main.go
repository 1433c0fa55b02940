// main.go
package main

import "github.com/aceteam-ai/vpswatch/cmd"

func main() {
	cmd.Execute()
}
