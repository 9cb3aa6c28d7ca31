package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"net"
	"net/http"
	_ "net/http/pprof" // nolint:gosec
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/raknet/pkg/peer"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/util/pathutil"
)

const configEnv = "RAKNET_CONFIG"

var (
	syslogAddr   string
	tag          string
	cfgFromStdin bool
	profileMode  string
	pport        string
)

var rootCmd = &cobra.Command{
	Use:   "raknet-peer [config-path]",
	Short: "RakNet peer accepting and initiating reliable UDP sessions",
	Run: func(_ *cobra.Command, args []string) {
		profilePath := profile.ProfilePath("./logs/" + tag)
		switch profileMode {
		case "cpu":
			defer profile.Start(profilePath, profile.CPUProfile).Stop()
		case "mem":
			defer profile.Start(profilePath, profile.MemProfile).Stop()
		case "mutex":
			defer profile.Start(profilePath, profile.MutexProfile).Stop()
		case "block":
			defer profile.Start(profilePath, profile.BlockProfile).Stop()
		case "trace":
			defer profile.Start(profilePath, profile.TraceProfile).Stop()
		case "http":
			go func() {
				log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%v", pport), nil))
			}()
		default:
			// do nothing
		}

		logger := logging.MustGetLogger(tag)

		conf, err := readConfig(args)
		if err != nil {
			logger.Fatalf("Failed to read config: %s", err)
		}

		p, err := peer.New(conf)
		if err != nil {
			logger.Fatal("Failed to initialise peer: ", err)
		}

		if syslogAddr != "none" {
			hook, err := logrus_syslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_INFO, tag)
			if err != nil {
				logger.Error("Unable to connect to syslog daemon")
			} else {
				logging.AddHook(hook)
				p.Logger.AddHook(hook)
			}
		}

		p.SetPacketHandler(func(addr net.Addr, pkt *protocol.InternalPacket) {
			logger.Debugf("Received %s from %s", pkt, addr)
		})
		logger.Infof("Listening on %s (guid %d)", p.LocalAddr(), p.Settings().GUID)

		var srv *http.Server
		if conf.StatusAddr != "" {
			srv = &http.Server{Addr: conf.StatusAddr, Handler: peer.NewAPI(p)}
			go func() {
				logger.Infof("Serving status API on %s", conf.StatusAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("Status API stopped")
				}
			}()
		}

		ch := make(chan os.Signal, 2)
		signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
		<-ch
		go func() {
			select {
			case <-time.After(conf.ShutdownTimeout.Duration()):
				logger.Fatal("Timeout reached: terminating")
			case s := <-ch:
				logger.Fatalf("Received signal %s: terminating", s)
			}
		}()

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout.Duration())
			if err := srv.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("Failed to shut down status API")
			}
			cancel()
		}
		if err := p.Close(); err != nil {
			logger.Fatal("Failed to close peer: ", err)
		}
	},
	Version: peer.Version,
}

func readConfig(args []string) (*peer.Config, error) {
	conf := peer.DefaultConfig()

	var rdr io.Reader
	if cfgFromStdin {
		rdr = bufio.NewReader(os.Stdin)
	} else {
		configPath := pathutil.FindConfigPath(args, 0, configEnv, pathutil.PeerDefaults())
		if configPath == "" {
			return conf, nil
		}
		f, err := os.Open(configPath) // nolint:gosec
		if err != nil {
			return nil, err
		}
		defer f.Close() // nolint:errcheck
		rdr = f
	}

	if err := json.NewDecoder(rdr).Decode(conf); err != nil {
		return nil, err
	}
	if conf.ShutdownTimeout == 0 {
		conf.ShutdownTimeout = peer.DefaultConfig().ShutdownTimeout
	}
	return conf, nil
}

func init() {
	rootCmd.Flags().StringVarP(&syslogAddr, "syslog", "", "none", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVarP(&tag, "tag", "", "raknet", "logging tag")
	rootCmd.Flags().BoolVarP(&cfgFromStdin, "stdin", "i", false, "read config from STDIN")
	rootCmd.Flags().StringVarP(&profileMode, "pprof", "p", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace, http]")
	rootCmd.Flags().StringVarP(&pport, "pport", "", "6060", "port for http-mode of pprof")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
