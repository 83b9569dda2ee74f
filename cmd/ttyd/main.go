package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Xiaohua-Shen/ttyd/internal/ttysrv"
)

func main() {
	var (
		host            string
		port            int
		credential      string
		readonly        bool
		checkOrigin     bool
		once            bool
		maxClients      int
		signalName      string
		reconnect       int
		prefsFile       string
		configFile      string
		tlsCert         string
		tlsKey          string
		shutdownTimeout time.Duration
		daemon          bool
		daemonChild     bool
		stop            bool
		status          bool
	)

	cmd := &cobra.Command{
		Use:           "ttyd [flags] <command> [args...]",
		Short:         "Share a terminal over the web",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("ttyd: reading --config %s: %w", configFile, err)
				}
			}

			if daemon && !daemonChild {
				daemonize(daemonChildArgs(os.Args[1:]))
				return nil
			}
			if stop {
				daemonStop()
				return nil
			}
			if status {
				daemonStatus()
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("ttyd: no command given, e.g. `ttyd bash`")
			}

			sig, sigName, err := parseSignal(viper.GetString("signal"))
			if err != nil {
				return err
			}

			prefsJSON := "{}"
			if path := viper.GetString("prefs-file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ttyd: reading --prefs-file %s: %w", path, err)
				}
				prefsJSON = string(data)
			}

			cfg := &ttysrv.Config{
				Argv:        args,
				Credential:  viper.GetString("credential"),
				Readonly:    viper.GetBool("readonly"),
				CheckOrigin: viper.GetBool("check-origin"),
				Once:        viper.GetBool("once"),
				MaxClients:  viper.GetInt("max-clients"),
				Signal:      sig,
				SignalName:  sigName,
				KillGrace:   3000,
				Reconnect:   viper.GetInt("reconnect"),
				PrefsJSON:   prefsJSON,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := serveOptions{
				addr:            fmt.Sprintf("%s:%d", viper.GetString("interface"), viper.GetInt("port")),
				tlsCert:         viper.GetString("tls-cert"),
				tlsKey:          viper.GetString("tls-key"),
				shutdownTimeout: shutdownTimeout,
			}

			return runServe(cfg, opts)
		},
	}

	cmd.Flags().StringVar(&host, "interface", "0.0.0.0", "Network interface to bind (env TTYD_INTERFACE)")
	cmd.Flags().IntVarP(&port, "port", "p", 7681, "Port to listen on (env TTYD_PORT)")
	cmd.Flags().StringVarP(&credential, "credential", "c", "", "Shared-secret token clients must present before a PTY is spawned (env TTYD_CREDENTIAL)")
	cmd.Flags().BoolVarP(&readonly, "readonly", "R", false, "Disallow input from the client (env TTYD_READONLY)")
	cmd.Flags().BoolVar(&checkOrigin, "check-origin", false, "Reject WebSocket handshakes whose Origin host does not match Host (env TTYD_CHECK_ORIGIN)")
	cmd.Flags().BoolVarP(&once, "once", "o", false, "Accept only one session then exit (env TTYD_ONCE)")
	cmd.Flags().IntVarP(&maxClients, "max-clients", "m", 0, "Maximum concurrent clients, 0 for unlimited (env TTYD_MAX_CLIENTS)")
	cmd.Flags().StringVarP(&signalName, "signal", "s", "HUP", "Signal to send to the child on session close (env TTYD_SIGNAL)")
	cmd.Flags().IntVarP(&reconnect, "reconnect", "r", 10, "Time in seconds the client should wait before reconnecting (env TTYD_RECONNECT)")
	cmd.Flags().StringVar(&prefsFile, "prefs-file", "", "Path to a JSON file forwarded verbatim to the client as xterm.js options (env TTYD_PREFS_FILE)")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (yaml/json/toml) layered under the flags")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to a TLS certificate file; enables HTTPS (env TTYD_TLS_CERT)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to a TLS key file (env TTYD_TLS_KEY)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run in the background as a daemon")
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop a running daemon")
	cmd.Flags().BoolVar(&status, "status", false, "Report the running daemon's status")
	cmd.Flags().BoolVar(&daemonChild, "daemon-child", false, "Internal: marks the re-executed, already-backgrounded daemon process")
	cmd.Flags().MarkHidden("daemon-child")

	for _, name := range []string{
		"interface", "port", "credential", "readonly", "check-origin", "once",
		"max-clients", "signal", "reconnect", "prefs-file", "tls-cert", "tls-key",
	} {
		viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	viper.SetEnvPrefix("TTYD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// daemonChildArgs strips --daemon/-d from the given args and appends
// --daemon-child, so the re-executed background process skips daemonize
// instead of forking itself again.
func daemonChildArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == "--daemon" || a == "-d" {
			continue
		}
		out = append(out, a)
	}
	return append(out, "--daemon-child")
}
