// Command fbxctl is the command line client for freebox-hub.
package main

import "github.com/strefethen/freebox-hub-go/internal/ctl/cmd"

func main() {
	cmd.Execute()
}
