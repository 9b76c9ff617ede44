package remote

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

const maxPacketSize = 65535

// Server listens for OSC packets over UDP.
type Server struct {
	router *Router
	logger *log.Logger
}

// NewServer serves packets through router.
func NewServer(router *Router, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{router: router, logger: logger.WithPrefix("osc")}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, conn)
}

// Serve reads packets from conn until ctx is cancelled. Packets are
// dispatched one at a time in arrival order; malformed ones are logged and
// skipped. conn is closed on return.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	s.logger.Info("listening for OSC messages", "address", conn.LocalAddr().String())
	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error receiving OSC message from socket: %w", err)
		}
		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			s.logger.Warn("dropping malformed packet", "from", from.String(), "size", n, "err", err)
			continue
		}
		s.router.Dispatch(packet)
	}
}
