//go:build !pcap
// +build !pcap

package transport

import "errors"

// PcapTransport is unavailable without the 'pcap' build tag; this stub keeps
// callers compiling against the same symbol.
type PcapTransport struct{}

// NewPcapTransport reports that pcap replay support was not compiled in.
func NewPcapTransport(path string, port int) (*PcapTransport, error) {
	return nil, errors.New("pcap support not compiled in (build with -tags pcap)")
}

func (t *PcapTransport) Receive() ([]byte, error) {
	return nil, errors.New("pcap support not compiled in (build with -tags pcap)")
}

func (t *PcapTransport) Count() uint64 { return 0 }

func (t *PcapTransport) Close() error { return nil }
