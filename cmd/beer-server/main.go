// Command beer-server runs the battleship lobby: it accepts TCP
// connections, pairs waiting clients into matches, and serves Prometheus
// metrics on a side port. It is a cobra root command; its signal-driven
// graceful shutdown is grounded on core/main.go.
package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unixthat/beer/internal/config"
	"github.com/unixthat/beer/internal/lobby"
	"github.com/unixthat/beer/internal/metrics"
	"github.com/unixthat/beer/pkg/logger"
)

var (
	flagConfigPath string
	flagHost       string
	flagPort       int
	flagSecure     string
	flagOneShip    bool
	flagDebug      bool
	flagQuiet      bool
)

func main() {
	root := &cobra.Command{
		Use:   "beer-server",
		Short: "Battleship match server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and run the lobby",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagConfigPath, "config", "", "path to a TOML config file")
	serve.Flags().StringVar(&flagHost, "host", "", "listen host (overrides config)")
	serve.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	serve.Flags().StringVar(&flagSecure, "secure", "", "enable AEAD framing with this hex preshared key")
	serve.Flags().BoolVar(&flagOneShip, "one-ship", false, "use the single-carrier fleet instead of the standard fleet")
	serve.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	serve.Flags().BoolVar(&flagQuiet, "quiet", false, "only log warnings and errors")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagSecure != "" {
		cfg.Secure = true
		cfg.PresharedKeyHex = flagSecure
	}
	if flagOneShip {
		cfg.OneShip = true
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagQuiet {
		cfg.Quiet = true
	}

	switch {
	case cfg.Debug:
		logger.SetLevel(logger.LevelDebug)
	case cfg.Quiet:
		logger.SetLevel(logger.LevelWarn)
	default:
		logger.SetLevel(logger.LevelInfo)
	}
	logger.Banner("BEER BATTLESHIP SERVER", "1.0.0")

	log := logger.Entry().WithField("component", "server")

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.WithField("addr", addr).Info("listening")

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
	}

	l := lobby.New(log, lobby.Options{
		Secure:          cfg.Secure,
		OneShip:         cfg.OneShip,
		TurnTimeout:     cfg.ShotClock,
		ReconnectWindow: cfg.ReconnectWindow,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		return ln.Close()
	}
}
