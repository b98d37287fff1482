// Command beer-client connects to a beer-server lobby and provides a
// terminal interface for chatting, firing, and reconnecting with a saved
// token, built as a cobra root command.
package main

import (
	"github.com/spf13/cobra"

	"github.com/unixthat/beer/internal/client"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/pkg/logger"
)

var (
	flagSecure bool
	flagToken  string
)

func main() {
	root := &cobra.Command{
		Use:   "beer-client",
		Short: "Battleship match client",
	}

	connect := &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Connect to a battleship match server",
		Args:  cobra.ExactArgs(1),
		RunE:  runConnect,
	}
	connect.Flags().BoolVar(&flagSecure, "secure", false, "negotiate AEAD framing with the server")
	connect.Flags().StringVar(&flagToken, "token", "", "reconnect token from a previous session")
	root.AddCommand(connect)

	if err := root.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	addr := args[0]
	mode := transport.Insecure
	if flagSecure {
		mode = transport.Secure
	}

	rt, err := client.Connect(addr, mode, flagToken)
	if err != nil {
		return err
	}
	return rt.Run()
}
