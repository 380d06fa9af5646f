// pgwctl -- CLI client for the pgwd control-plane emulator.
package main

import "github.com/dantte-lp/gopgw/cmd/pgwctl/commands"

func main() {
	commands.Execute()
}
