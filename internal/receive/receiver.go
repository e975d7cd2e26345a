// Package receive binds a transport adapter to a telegram decoder and exposes
// the collect-N-segments operation of the scan-segment API.
package receive

import (
	"errors"
	"fmt"

	"github.com/banshee-data/scansegment/internal/compact"
	"github.com/banshee-data/scansegment/internal/monitoring"
	"github.com/banshee-data/scansegment/internal/msgpack"
	"github.com/banshee-data/scansegment/internal/segment"
	"github.com/banshee-data/scansegment/internal/transport"
)

// Decoder turns one telegram byte-blob into a decoded segment.
type Decoder func(data []byte) (*segment.Segment, error)

// ErrorPolicy selects how the receiver reacts to a decode failure on a single
// telegram.
type ErrorPolicy int

const (
	// FailFast aborts the receive call on the first decode failure.
	FailFast ErrorPolicy = iota
	// SkipAndLog logs the failure and keeps receiving.
	SkipAndLog
)

// Sink observes every decoded segment, e.g. to persist it. Sink failures are
// logged, never surfaced; recording must not break reception.
type Sink interface {
	RecordSegment(seg *segment.Segment) error
}

// Config assembles a receiver from its parts. Transport and Decode are
// required; Policy defaults to FailFast and Sink is optional.
type Config struct {
	Transport transport.Transport
	Decode    Decoder
	Policy    ErrorPolicy
	Sink      Sink
}

// Receiver synchronously alternates between pulling one telegram from its
// transport and decoding it. It is not safe for concurrent use; callers that
// want parallelism wrap it in their own goroutine.
type Receiver struct {
	transport transport.Transport
	decode    Decoder
	policy    ErrorPolicy
	sink      Sink
}

// New creates a receiver from a config.
func New(cfg Config) (*Receiver, error) {
	if cfg.Transport == nil {
		return nil, errors.New("receiver requires a transport")
	}
	if cfg.Decode == nil {
		return nil, errors.New("receiver requires a decoder")
	}
	return &Receiver{
		transport: cfg.Transport,
		decode:    cfg.Decode,
		policy:    cfg.Policy,
		sink:      cfg.Sink,
	}, nil
}

// NewCompactReceiver binds a transport to the COMPACT decoder.
func NewCompactReceiver(t transport.Transport) *Receiver {
	r, _ := New(Config{Transport: t, Decode: compact.Decode})
	return r
}

// NewMsgpackReceiver binds a transport to the MSGPACK decoder.
func NewMsgpackReceiver(t transport.Transport) *Receiver {
	r, _ := New(Config{Transport: t, Decode: msgpack.Decode})
	return r
}

// ReceiveSegments collects up to n segments and returns them along with
// parallel slices of their frame numbers and segment counters, in on-wire
// order. A transport failure ends the call early: the partial results
// collected so far are returned alongside the error. Decode failures follow
// the configured policy.
func (r *Receiver) ReceiveSegments(n int) ([]*segment.Segment, []uint32, []uint32, error) {
	segments := make([]*segment.Segment, 0, n)
	frameNumbers := make([]uint32, 0, n)
	segmentCounters := make([]uint32, 0, n)

	for len(segments) < n {
		telegram, err := r.transport.Receive()
		if err != nil {
			return segments, frameNumbers, segmentCounters, err
		}

		seg, err := r.decode(telegram)
		if err != nil {
			if r.policy == SkipAndLog {
				monitoring.Logf("skipping undecodable telegram: %v", err)
				continue
			}
			return segments, frameNumbers, segmentCounters, fmt.Errorf("decode failed: %w", err)
		}

		if r.sink != nil {
			if err := r.sink.RecordSegment(seg); err != nil {
				monitoring.Logf("failed to record segment: %v", err)
			}
		}

		segments = append(segments, seg)
		frameNumbers = append(frameNumbers, seg.FrameNumber)
		segmentCounters = append(segmentCounters, seg.SegmentCounter)
	}

	return segments, frameNumbers, segmentCounters, nil
}

// CloseConnection forwards to the transport adapter, cancelling any blocked
// receive.
func (r *Receiver) CloseConnection() error {
	return r.transport.Close()
}
