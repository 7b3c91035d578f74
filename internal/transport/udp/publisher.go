// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "micscope/internal/log"
	"micscope/internal/transport"
)

// HeaderSize is the fixed part of a spectrum packet in bytes.
const HeaderSize = 4 + 8 + 2 + 4

// UDPPublisher periodically snapshots the latest spectrum, packs it into the
// binary format below and sends it through a UDPSender. It runs on its own
// goroutine between Start and Stop, independent of the render loop.
type UDPPublisher struct {
	sender   *UDPSender
	source   transport.SpectrumProvider
	binWidth float32 // Hz per spectrum bin
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	// Pre-allocated buffers for buildAndSendPacket.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher for source. binWidth is the spectrum bin
// spacing in Hz and is carried in every packet so receivers can label bins.
// An interval <= 0 defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source transport.SpectrumProvider, binWidth float64) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, errors.New("UDPPublisher: spectrum source cannot be nil")
	}
	bins := source.Bins()
	if bins > math.MaxUint16 || HeaderSize+4*bins > MaxDatagramSize {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit in one datagram", bins)
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		binWidth:     float32(binWidth),
		interval:     interval,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: bytes.NewBuffer(make([]byte, 0, HeaderSize+4*bins)),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Captured so the goroutine never reads p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				if err := p.buildAndSendPacket(); err != nil {
					applog.Debugf("UDPPublisher: %v", err)
				}
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit. Safe to call
// more than once.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished after %d packets.", p.sequenceNum)
	return nil
}

/*
Spectrum packet (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<-- 4 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Bin Count   |   Bin Width   |       Magnitudes        |
|      (uint32)     |   (int64, unix ns)    |    (uint16)   |  (float32 Hz) |      (N * float32)      |
+-------------------+-----------------------+---------------+---------------+-------------------------+
*/

// Packet is a decoded spectrum packet.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	BinWidth   float32
	Magnitudes []float32
}

func (p *UDPPublisher) buildAndSendPacket() error {
	if err := p.source.SpectrumInto(p.magBuffer); err != nil {
		return fmt.Errorf("error getting spectrum: %w", err)
	}
	for i, v := range p.magBuffer {
		p.f32Buffer[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:], p.sequenceNum)
	binary.BigEndian.PutUint64(header[4:], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint16(header[12:], uint16(len(p.f32Buffer)))
	binary.BigEndian.PutUint32(header[14:], math.Float32bits(p.binWidth))
	p.packetBuffer.Write(header[:])

	if err := binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer); err != nil {
		return fmt.Errorf("error packing magnitudes: %w", err)
	}

	packetBytes := p.packetBuffer.Bytes()
	if err := p.sender.Send(packetBytes); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packetBytes))
	return nil
}

// DecodePacket parses a datagram produced by the publisher.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	count := int(binary.BigEndian.Uint16(data[12:]))
	if len(data) != HeaderSize+4*count {
		return nil, fmt.Errorf("packet length %d does not match %d bins", len(data), count)
	}

	pkt := &Packet{
		Seq:        binary.BigEndian.Uint32(data[0:]),
		Timestamp:  int64(binary.BigEndian.Uint64(data[4:])),
		BinWidth:   math.Float32frombits(binary.BigEndian.Uint32(data[14:])),
		Magnitudes: make([]float32, count),
	}
	for i := range count {
		pkt.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(data[HeaderSize+4*i:]))
	}
	return pkt, nil
}

// Close stops the publisher. The sender is owned by the caller.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
