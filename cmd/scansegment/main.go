// Command scansegment receives and decodes LiDAR scan-segment telegrams.
//
// Two subcommands:
//
//	scansegment read {msgpack|compact} -i FILE
//	    feed a telegram dump file through the matching stream extractor and
//	    decoder and print the decoded segments.
//
//	scansegment receive {msgpack|compact} [--ip A] [--port P]
//	    [--protocol udp|tcp] [-n N] [--record DB] [--skip-errors]
//	    [--config FILE]
//	    listen (udp) or connect (tcp) and decode live data.
//
// Exit code 0 on clean termination, non-zero on transport or decode failure.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/scansegment/internal/compact"
	"github.com/banshee-data/scansegment/internal/config"
	"github.com/banshee-data/scansegment/internal/msgpack"
	"github.com/banshee-data/scansegment/internal/receive"
	"github.com/banshee-data/scansegment/internal/recorder"
	"github.com/banshee-data/scansegment/internal/segment"
	"github.com/banshee-data/scansegment/internal/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  scansegment read {msgpack|compact} -i FILE
  scansegment receive {msgpack|compact} [--ip A] [--port P] [--protocol udp|tcp] [-n N] [--record DB] [--skip-errors] [--config FILE]
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	command := os.Args[1]
	format := os.Args[2]
	if format != "msgpack" && format != "compact" {
		log.Printf("unknown format %q, want msgpack or compact", format)
		usage()
	}

	var err error
	switch command {
	case "read":
		err = runRead(format, os.Args[3:])
	case "receive":
		err = runReceive(format, os.Args[3:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

// newExtractor returns the stream extractor matching the wire format.
func newExtractor(format string) transport.Extractor {
	if format == "compact" {
		return compact.NewStreamExtractor()
	}
	return msgpack.NewStreamExtractor()
}

// newReceiver binds a transport to the decoder matching the wire format.
func newReceiver(format string, t transport.Transport, cfg receive.Config) (*receive.Receiver, error) {
	cfg.Transport = t
	if format == "compact" {
		cfg.Decode = compact.Decode
	} else {
		cfg.Decode = msgpack.Decode
	}
	return receive.New(cfg)
}

// runRead feeds a dump file through the matching extractor and decoder and
// prints every decoded segment.
func runRead(format string, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	input := fs.String("i", "", "telegram dump file to read")
	fs.Parse(args)
	if *input == "" {
		return errors.New("read requires -i FILE")
	}

	f, err := os.Open(*input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *input, err)
	}

	t, err := transport.NewReaderTransport(f, newExtractor(format), transport.DefaultChunkSize)
	if err != nil {
		return err
	}
	defer t.Close()

	count := 0
	for {
		telegram, err := t.Receive()
		if errors.Is(err, segment.ErrTransportClosed) {
			break // end of file
		}
		if err != nil {
			return err
		}
		seg, err := decodeFor(format, telegram)
		if err != nil {
			return fmt.Errorf("telegram %d: %w", count, err)
		}
		count++
		printSegment(count, seg)
	}
	log.Printf("decoded %d segments from %s", count, *input)
	return nil
}

func decodeFor(format string, telegram []byte) (*segment.Segment, error) {
	if format == "compact" {
		return compact.Decode(telegram)
	}
	return msgpack.Decode(telegram)
}

// runReceive listens or connects per the flags and collects segments until
// the requested count is reached or the transport ends.
func runReceive(format string, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	ip := fs.String("ip", "", "address to listen on (udp) or sensor address (tcp)")
	port := fs.Int("port", 0, "sensor data port")
	protocol := fs.String("protocol", "", "transport protocol: udp or tcp")
	numSegments := fs.Int("n", 0, "number of segments to receive")
	recordPath := fs.String("record", "", "record decoded segments to this sqlite database")
	skipErrors := fs.Bool("skip-errors", false, "skip undecodable telegrams instead of failing")
	configPath := fs.String("config", "", "JSON run configuration file")
	fs.Parse(args)

	var runCfg *config.RunConfig
	if *configPath != "" {
		var err error
		runCfg, err = config.LoadRunConfig(*configPath)
		if err != nil {
			return err
		}
	}

	// Flags override the config file which overrides the defaults.
	host := runCfg.HostOrDefault()
	if *ip != "" {
		host = *ip
	}
	dataPort := runCfg.PortOrDefault()
	if *port != 0 {
		dataPort = *port
	}
	proto := runCfg.ProtocolOrDefault()
	if *protocol != "" {
		proto = *protocol
	}
	segments := runCfg.SegmentsOrDefault()
	if *numSegments != 0 {
		segments = *numSegments
	}
	recording := runCfg.RecordPathOrDefault()
	if *recordPath != "" {
		recording = *recordPath
	}
	policy := receive.FailFast
	if *skipErrors || runCfg.SkipErrorsOrDefault() {
		policy = receive.SkipAndLog
	}

	var t transport.Transport
	switch proto {
	case "udp":
		udp, err := transport.NewDatagramTransport(transport.DatagramConfig{
			Host:        host,
			Port:        dataPort,
			MaxDatagram: runCfg.MaxDatagramOrDefault(),
		})
		if err != nil {
			return err
		}
		t = udp
	case "tcp":
		tcp, err := transport.NewStreamTransport(transport.StreamConfig{
			Extractor: newExtractor(format),
			Host:      host,
			Port:      dataPort,
			ChunkSize: runCfg.ChunkSizeOrDefault(),
		})
		if err != nil {
			return err
		}
		t = tcp
	default:
		return fmt.Errorf("invalid transport protocol %q, want udp or tcp", proto)
	}

	cfg := receive.Config{Policy: policy}
	if recording != "" {
		rec, err := recorder.Open(recording, format)
		if err != nil {
			t.Close()
			return err
		}
		defer rec.Close()
		cfg.Sink = rec
		log.Printf("recording segments to %s (session %s)", recording, rec.SessionID())
	}

	receiver, err := newReceiver(format, t, cfg)
	if err != nil {
		t.Close()
		return err
	}
	defer receiver.CloseConnection()

	log.Printf("receiving %d %s segments via %s from %s:%d", segments, format, proto, host, dataPort)
	received, frameNumbers, segmentCounters, err := receiver.ReceiveSegments(segments)
	for i, seg := range received {
		printSegment(i+1, seg)
	}
	if err != nil {
		return fmt.Errorf("received %d of %d segments: %w", len(received), segments, err)
	}
	log.Printf("received %d segments across %d frames (last segment counter %d)",
		len(received), countDistinct(frameNumbers), last(segmentCounters))
	return nil
}

func printSegment(index int, seg *segment.Segment) {
	switch {
	case len(seg.Modules) > 0:
		m := seg.Modules[0]
		fmt.Printf("segment %d: telegram=%d frame=%d counter=%d sender=%d modules=%d lines=%d beams=%d echos=%d theta=[%.4f, %.4f]\n",
			index, seg.TelegramCounter, seg.FrameNumber, seg.SegmentCounter, seg.SenderID,
			len(seg.Modules), m.LinesInModule, m.BeamsPerScan, m.EchosPerBeam, m.ThetaStart[0], m.ThetaStop[0])
	case len(seg.Scans) > 0:
		s := seg.Scans[0]
		fmt.Printf("segment %d: telegram=%d frame=%d counter=%d sender=%d scans=%d beams=%d echos=%d theta=[%.4f, %.4f]\n",
			index, seg.TelegramCounter, seg.FrameNumber, seg.SegmentCounter, seg.SenderID,
			len(seg.Scans), s.BeamCount, s.EchoCount, s.ThetaStart, s.ThetaStop)
	}
}

func countDistinct(values []uint32) int {
	seen := make(map[uint32]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func last(values []uint32) uint32 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
