package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "micscope/internal/log"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("UDP sender is closed")

// UDPSender writes datagrams to one connected peer.
type UDPSender struct {
	mu     sync.Mutex // Guards conn and the counters
	conn   *net.UDPConn
	target *net.UDPAddr

	packets uint64
	bytes   uint64
}

// NewUDPSender dials targetAddress ("host:port"). UDP is connectionless, so
// this succeeds whether or not anything is listening.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	target, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, target)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP target %q: %w", targetAddress, err)
	}

	applog.Infof("UDP: sending spectrum packets to %s", target)
	return &UDPSender{conn: conn, target: target}, nil
}

// Send writes data as a single datagram. Safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("packet of %d bytes exceeds UDP limit of %d", len(data), MaxDatagramSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSenderClosed
	}
	n, err := s.conn.Write(data)
	if err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.packets++
	s.bytes += uint64(n)
	return nil
}

// Stats returns the number of datagrams and payload bytes sent so far.
func (s *UDPSender) Stats() (packets, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets, s.bytes
}

// RemoteAddr returns the target address.
func (s *UDPSender) RemoteAddr() *net.UDPAddr {
	return s.target
}

// Close releases the socket. Later calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	applog.Infof("UDP: closed %s after %d packets (%d bytes)", s.target, s.packets, s.bytes)
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
