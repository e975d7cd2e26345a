//go:build pcap
// +build pcap

package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/scansegment/internal/segment"
)

// PcapTransport replays recorded UDP sensor traffic from a pcap file,
// yielding each UDP payload on the configured port as one datagram. It is
// only available when building with the 'pcap' build tag.
type PcapTransport struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
	port   int
	count  atomic.Uint64
}

// NewPcapTransport opens a pcap file and filters it down to UDP traffic on
// the given port.
func NewPcapTransport(path string, port int) (*PcapTransport, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	filter := fmt.Sprintf("udp port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}
	return &PcapTransport{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
		port:   port,
	}, nil
}

// Receive returns the next non-empty UDP payload from the capture. The end
// of the file reports segment.ErrTransportClosed like a closed socket.
func (t *PcapTransport) Receive() ([]byte, error) {
	for {
		packet, err := t.source.NextPacket()
		if err != nil {
			return nil, fmt.Errorf("%w: pcap replay ended: %v", segment.ErrTransportClosed, err)
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		t.count.Add(1)
		telegram := make([]byte, len(udp.Payload))
		copy(telegram, udp.Payload)
		return telegram, nil
	}
}

// Count reports the number of payloads replayed so far.
func (t *PcapTransport) Count() uint64 { return t.count.Load() }

// Close releases the pcap handle.
func (t *PcapTransport) Close() error {
	t.handle.Close()
	return nil
}
