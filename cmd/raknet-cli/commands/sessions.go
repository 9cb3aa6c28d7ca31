package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycoin/raknet/cmd/raknet-cli/internal"
	"github.com/skycoin/raknet/internal/httputil"
	"github.com/skycoin/raknet/pkg/peer"
)

var statusAddr string

func init() {
	sessionsCmd.PersistentFlags().StringVarP(&statusAddr, "status", "s", "localhost:8019", "status API address of the peer")
	sessionsCmd.AddCommand(rmSessionCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists the sessions of a running peer",
	Run: func(_ *cobra.Command, _ []string) {
		var sessions []peer.SessionInfo
		internal.Catch(statusRequest(http.MethodGet, "/api/sessions", &sessions))
		printSessions(sessions...)
	},
}

var rmSessionCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Disconnects a session of a running peer",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		addr := internal.ParseAddr("address", args[0])
		internal.Catch(statusRequest(http.MethodDelete, "/api/sessions/"+url.PathEscape(addr.String()), nil))
		fmt.Println("OK")
	},
}

func statusRequest(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, "http://"+statusAddr+path, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp httputil.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("status API returned %s", resp.Status)
		}
		return fmt.Errorf("status API returned %s: %s", resp.Status, errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printSessions(sessions ...peer.SessionInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
	_, err := fmt.Fprintln(w, "id\taddress\tguid\tmtu\tonline\tlatency\trecv\tsent")
	internal.Catch(err)
	for _, s := range sessions {
		_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\t%d\t%d\n",
			s.ID, s.Addr, s.GUID, s.MTU, s.Online, s.Latency, s.Received, s.Sent)
		internal.Catch(err)
	}
	internal.Catch(w.Flush())
}
