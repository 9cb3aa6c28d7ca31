package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycoin/raknet/cmd/raknet-cli/internal"
)

var pingTimeout time.Duration

func init() {
	pingCmd.Flags().DurationVarP(&pingTimeout, "timeout", "t", 3*time.Second, "time to wait for the pong")
}

var pingCmd = &cobra.Command{
	Use:   "ping <address>",
	Short: "Sends an unconnected ping and prints the pong",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		addr := internal.ParseAddr("address", args[0])

		p := internal.EphemeralPeer(pingTimeout)
		defer p.Close() // nolint:errcheck

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		start := time.Now()
		pong, err := p.Ping(ctx, addr)
		internal.Catch(err, "ping failed:")

		fmt.Printf("guid:        %d\n", pong.ServerGUID)
		fmt.Printf("information: %s\n", pong.Information)
		fmt.Printf("rtt:         %s\n", time.Since(start).Round(time.Microsecond))
	},
}
