package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/PolarWolf314/enseal/internal/configs"
	"github.com/PolarWolf314/enseal/internal/server"
	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/utils"
)

var (
	serveConfigFile  string
	serveAddress     string
	serveTLSCert     string
	serveTLSKey      string
	serveMaxChannels int
	serveChannelTTL  time.Duration
	serveMaxPayload  int64
	serveRateLimit   int
	serveMetrics     bool
	serveLogFile     string
	serveLogLevel    string
)

func init() {
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	f.StringVarP(&serveConfigFile, "config", "c", "", "relay config file (TOML)")
	f.StringVar(&serveAddress, "address", "", "host:port to listen on (default \":4443\")")
	f.StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	f.StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	f.IntVar(&serveMaxChannels, "max-channels", 0, "maximum concurrent channels")
	f.DurationVar(&serveChannelTTL, "channel-ttl", 0, "lifetime of every channel")
	f.Int64Var(&serveMaxPayload, "max-payload", 0, "maximum message size in bytes")
	f.IntVar(&serveRateLimit, "rate-limit", 0, "new connections per minute per client address, -1 to disable")
	f.BoolVar(&serveMetrics, "metrics", false, "serve prometheus metrics at /metrics")
	f.StringVar(&serveLogFile, "log-file", "", "log to this file instead of stdout")
	f.StringVar(&serveLogLevel, "log-level", "", "ERROR, WARNING, NOTICE, INFO or DEBUG")
}

func resetServeCommandState() {
	serveConfigFile = ""
	serveAddress = ""
	serveTLSCert = ""
	serveTLSKey = ""
	serveMaxChannels = 0
	serveChannelTTL = 0
	serveMaxPayload = 0
	serveRateLimit = 0
	serveMetrics = false
	serveLogFile = ""
	serveLogLevel = ""
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a relay server",
	Long: `Runs the relay that pairs senders with receivers. The relay forwards
ciphertext only and forgets every channel once it is used or expires.

Flags override values from --config. SIGHUP reopens the log file.

Examples:
  enseal serve
  enseal serve --address :8443 --tls-cert cert.pem --tls-key key.pem
  enseal serve --config relay.toml --metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildServerConfig(cmd.Flags())
		if err != nil {
			fmt.Println(failure("Invalid relay configuration", err))
			return reported(err)
		}

		if utils.IsStdoutTerminal() && !cfg.Logging.Disable {
			figure.NewColorFigure("enseal", "alligator2", "cyan", true).Print()
			fmt.Println()
		}

		srv, err := server.New(cfg)
		if err != nil {
			fmt.Println(failure("Failed to start relay", err))
			return reported(err)
		}
		fmt.Printf("%s Relay listening on %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(srv.URL()))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		go func() {
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					srv.RotateLog()
					continue
				}
				srv.Shutdown()
				return
			}
		}()

		srv.Wait()
		return nil
	},
}

// buildServerConfig loads --config, if any, and applies flags the user set.
func buildServerConfig(f *pflag.FlagSet) (*configs.ServerConfig, error) {
	cfg := &configs.ServerConfig{}
	if serveConfigFile != "" {
		loaded, err := configs.LoadServerConfigFile(serveConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", serveConfigFile, err)
		}
		cfg = loaded
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	sCfg := cfg.Server
	if f.Changed("address") {
		sCfg.Address = serveAddress
	}
	if f.Changed("tls-cert") {
		sCfg.TLSCertFile = serveTLSCert
	}
	if f.Changed("tls-key") {
		sCfg.TLSKeyFile = serveTLSKey
	}
	if f.Changed("max-channels") {
		sCfg.MaxChannels = serveMaxChannels
	}
	if f.Changed("channel-ttl") {
		sCfg.ChannelTTL = serveChannelTTL
	}
	if f.Changed("max-payload") {
		sCfg.MaxPayloadBytes = serveMaxPayload
	}
	if f.Changed("rate-limit") {
		sCfg.RateLimitPerMinute = serveRateLimit
	}
	if f.Changed("metrics") {
		cfg.Metrics.Enable = serveMetrics
	}
	if f.Changed("log-file") {
		cfg.Logging.File = serveLogFile
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = serveLogLevel
	}

	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
