package commands

import (
	"fmt"
	"path/filepath"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/raknet/cmd/raknet-cli/internal"
	"github.com/skycoin/raknet/pkg/peer"
	"github.com/skycoin/raknet/pkg/util/pathutil"
)

var log = logging.MustGetLogger("raknet-cli")

var (
	output        string
	replace       bool
	configLocType = pathutil.WorkingDirLoc
)

func init() {
	genConfigCmd.Flags().StringVarP(&output, "output", "o", "", "path of output config file. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&replace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generates a config file",
	PreRun: func(_ *cobra.Command, _ []string) {
		if output == "" {
			output = pathutil.PeerDefaults().Get(configLocType)
			log.Infof("No 'output' set; using default path: %s", output)
		}
		var err error
		if output, err = filepath.Abs(output); err != nil {
			log.WithError(err).Fatalln("invalid output provided")
		}
	},
	Run: func(_ *cobra.Command, _ []string) {
		var conf *peer.Config
		switch configLocType {
		case pathutil.WorkingDirLoc:
			conf = defaultConfig()
		case pathutil.HomeLoc:
			conf = homeConfig()
		case pathutil.LocalLoc:
			conf = localConfig()
		default:
			log.Fatalln("invalid config type:", configLocType)
		}
		internal.Catch(pathutil.WriteJSONConfig(conf, output, replace))
	},
}

func homeConfig() *peer.Config {
	c := defaultConfig()
	c.BanList.Location = filepath.Join(pathutil.PeerDir(), "bans.db")
	return c
}

func localConfig() *peer.Config {
	c := defaultConfig()
	c.BanList.Location = "/usr/local/raknet/bans.db"
	return c
}

func defaultConfig() *peer.Config {
	conf := peer.DefaultConfig()
	conf.BanList.Type = "boltdb"
	conf.BanList.Location = "./raknet/bans.db"
	conf.StatusAddr = "localhost:8019"
	return conf
}
