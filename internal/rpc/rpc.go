// Package rpc provides Unix socket IPC between the matrixpush server and
// the status CLI.
package rpc

import (
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is a point-in-time view of the running server.
type Snapshot struct {
	Uptime           time.Duration
	StripsAttached   int
	PixelsPerStrip   int
	PacketsReceived  uint64
	BytesReceived    uint64
	Discards         uint64
	PusherCommands   uint64
	LastSequence     int64
	UpdatePeriodUSec uint32
}

// StatsSource produces snapshots for the RPC service.
type StatsSource interface {
	Stats() Snapshot
}

// Service is the RPC service exposed by the server.
type Service struct {
	src StatsSource
	log zerolog.Logger
}

// StatsArgs is the request for Stats.
type StatsArgs struct{}

// StatsReply is the response for Stats.
type StatsReply struct {
	Snapshot Snapshot
}

// Stats returns the current server snapshot.
func (s *Service) Stats(args *StatsArgs, reply *StatsReply) error {
	reply.Snapshot = s.src.Stats()
	return nil
}

// StartServer starts the Unix socket RPC server.
func StartServer(socketPath string, src StatsSource, log zerolog.Logger) error {
	service := &Service{src: src, log: log}

	server := netrpc.NewServer()
	if err := server.Register(service); err != nil {
		return fmt.Errorf("registering RPC service: %w", err)
	}

	// Remove existing socket file if present
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	// Set socket permissions
	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("RPC server started")

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("RPC accept error")
				continue
			}
			go server.ServeConn(conn)
		}
	}()

	return nil
}

// Client is a client for the matrixpush RPC service.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Stats fetches the current server snapshot.
func (c *Client) Stats() (Snapshot, error) {
	args := &StatsArgs{}
	reply := &StatsReply{}
	if err := c.client.Call("Service.Stats", args, reply); err != nil {
		return Snapshot{}, err
	}
	return reply.Snapshot, nil
}
