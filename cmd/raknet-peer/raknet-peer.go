/*
raknet peer daemon
*/
package main

import "github.com/skycoin/raknet/cmd/raknet-peer/commands"

func main() {
	commands.Execute()
}
