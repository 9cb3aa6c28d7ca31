/*
CLI for raknet peers
*/
package main

import "github.com/skycoin/raknet/cmd/raknet-cli/commands"

func main() {
	commands.Execute()
}
