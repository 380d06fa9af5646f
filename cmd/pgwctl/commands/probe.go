package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gopgw/internal/bcd"
)

// probeReplySize bounds the reply read; actual replies are short ASCII words.
const probeReplySize = 64

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <imsi>",
		Short: "Send a BCD-encoded IMSI to the pgwd datagram socket and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			reply, err := probe(args[0])
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

// probe encodes imsi, fires it at the gateway, and waits for the reply
// within the configured timeout.
func probe(imsi string) (string, error) {
	payload, err := bcd.Encode(imsi)
	if err != nil {
		return "", fmt.Errorf("encode imsi %q: %w", imsi, err)
	}

	conn, err := net.Dial("udp", udpAddr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", udpAddr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return "", fmt.Errorf("send probe: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, probeReplySize)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(buf[:n]), nil
}
