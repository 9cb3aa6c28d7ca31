package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycoin/raknet/cmd/raknet-cli/internal"
	"github.com/skycoin/raknet/pkg/protocol"
)

var (
	connectTimeout time.Duration
	message        string
	linger         time.Duration
)

func init() {
	connectCmd.Flags().DurationVarP(&connectTimeout, "timeout", "t", 10*time.Second, "time to wait for the handshake")
	connectCmd.Flags().StringVarP(&message, "message", "m", "", "payload sent reliable ordered once connected")
	connectCmd.Flags().DurationVar(&linger, "linger", time.Second, "time to keep the session open before disconnecting")
}

var connectCmd = &cobra.Command{
	Use:   "connect <address>",
	Short: "Performs the connection handshake and prints the session",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		addr := internal.ParseAddr("address", args[0])

		p := internal.EphemeralPeer(connectTimeout)
		defer p.Close() // nolint:errcheck

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		info, err := p.Connect(ctx, addr)
		internal.Catch(err, "connect failed:")

		if message != "" {
			internal.Catch(p.Send(addr, []byte(message), protocol.ReliableOrdered, 0), "send failed:")
		}

		time.Sleep(linger)
		if current, err := p.Session(addr.String()); err == nil {
			info = &current
		}

		raw, err := json.MarshalIndent(info, "", "\t")
		internal.Catch(err)
		fmt.Println(string(raw))

		internal.Catch(p.Disconnect(addr), "disconnect failed:")
	},
}
