// Package client implements the player-facing half of the connection: dial
// and handshake, a receiver goroutine that renders incoming frames, and a
// line-oriented sender for CHAT/FIRE/QUIT input, grounded on client.py's
// connect-then-two-loops structure.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

// Runtime owns one client connection: the transport endpoint plus the
// terminal it renders to and reads input from.
type Runtime struct {
	ep  *transport.Endpoint
	out io.Writer
}

// Connect dials addr, performs the handshake, and sends the reconnect token
// (empty for a fresh player) as the lobby's first expected frame.
func Connect(addr string, secure transport.SecureMode, token string) (*Runtime, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	codec, rekeyMaterial, err := transport.ClientHandshake(conn, secure)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	ep := transport.New(conn, codec)
	ep.EnableRekey(rekeyMaterial, false)
	if err := ep.Send(wire.PacketGame, map[string]string{"token": token}); err != nil {
		_ = ep.Close()
		return nil, fmt.Errorf("send handshake token: %w", err)
	}
	return &Runtime{ep: ep, out: os.Stdout}, nil
}

// Run blocks, rendering every inbound frame to the runtime's writer until
// the connection closes or stdin reaches EOF, whichever comes first.
func (r *Runtime) Run() error {
	lines := make(chan string)
	go r.readStdin(lines)

	for {
		select {
		case in, ok := <-r.ep.Inbox:
			if !ok {
				fmt.Fprintln(r.out, "[disconnected]")
				return nil
			}
			if in.Err != nil {
				fmt.Fprintf(r.out, "[connection error: %v]\n", in.Err)
				return in.Err
			}
			r.render(in.Frame)

		case line, ok := <-lines:
			if !ok {
				return r.ep.Close()
			}
			if err := r.ep.Send(wire.PacketGame, map[string]string{"msg": line}); err != nil {
				return err
			}
		}
	}
}

func (r *Runtime) readStdin(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines <- line
	}
}

func (r *Runtime) render(f wire.Frame) {
	switch f.Type {
	case wire.PacketGame:
		var body map[string]interface{}
		_ = f.Decode(&body)
		if msg, ok := body["msg"].(string); ok {
			fmt.Fprintln(r.out, msg)
			return
		}
		if rows, ok := body["rows"].([]interface{}); ok {
			for _, row := range rows {
				fmt.Fprintln(r.out, row)
			}
			return
		}
		fmt.Fprintf(r.out, "%v\n", body)

	case wire.PacketChat:
		var body struct {
			Name string `json:"name"`
			Msg  string `json:"msg"`
		}
		_ = f.Decode(&body)
		fmt.Fprintf(r.out, "[%s] %s\n", body.Name, body.Msg)

	case wire.PacketError:
		var body struct {
			Msg string `json:"msg"`
		}
		_ = f.Decode(&body)
		fmt.Fprintln(r.out, body.Msg)

	case wire.PacketOppGrid:
		// the cheat/reveal channel: a normal client never renders this.

	default:
		fmt.Fprintf(r.out, "[%s frame]\n", f.Type)
	}
}
