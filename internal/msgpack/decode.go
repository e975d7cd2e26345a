package msgpack

import (
	"bytes"
	"encoding/binary"
	"fmt"

	mp "github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/scansegment/internal/segment"
)

// Decode parses one MSGPACK telegram: the encoded body followed by four CRC
// bytes covering it. The body must be a one-entry map keyed by the constant 1
// (or "data") holding the segment fields.
func Decode(data []byte) (*segment.Segment, error) {
	if len(data) < crcSize+1 {
		return nil, fmt.Errorf("%w: %d bytes is below the minimal telegram size", segment.ErrMalformedTelegram, len(data))
	}
	body := data[:len(data)-crcSize]
	wantCrc := binary.LittleEndian.Uint32(data[len(data)-crcSize:])
	if gotCrc := segment.Checksum(body); gotCrc != wantCrc {
		return nil, fmt.Errorf("%w: computed 0x%08X, telegram carries 0x%08X", segment.ErrCrcMismatch, gotCrc, wantCrc)
	}

	// Maps are decoded untyped so integer-keyed and string-keyed telegrams
	// come out the same way; keys are normalised afterwards.
	dec := mp.NewDecoder(bytes.NewReader(body))
	dec.SetMapDecoder(func(d *mp.Decoder) (interface{}, error) {
		return d.DecodeUntypedMap()
	})
	raw, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrMalformedTelegram, err)
	}

	outer, err := asKeyedMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: outer value is not a map", segment.ErrMalformedTelegram)
	}
	if len(outer) != 1 {
		return nil, fmt.Errorf("%w: outer map has %d entries, want 1", segment.ErrMalformedTelegram, len(outer))
	}
	inner, ok := outer[keyData]
	if !ok {
		return nil, fmt.Errorf("%w: outer map is not keyed by the data constant", segment.ErrMalformedTelegram)
	}
	fields, err := asKeyedMap(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: segment value is not a map", segment.ErrTypeMismatch)
	}

	seg := &segment.Segment{}
	if seg.TelegramCounter, err = requireUint(fields, keyTelegramCounter); err != nil {
		return nil, err
	}
	if seg.TimestampTransmit, err = requireUint(fields, keyTimestampTransmit); err != nil {
		return nil, err
	}
	if seg.SegmentCounter, err = requireUint32(fields, keySegmentCounter); err != nil {
		return nil, err
	}
	if seg.FrameNumber, err = requireUint32(fields, keyFrameNumber); err != nil {
		return nil, err
	}
	if seg.SenderID, err = requireUint32(fields, keySenderID); err != nil {
		return nil, err
	}
	if availability, ok, err := optionalUint32(fields, keyAvailability); err != nil {
		return nil, err
	} else if ok {
		seg.Availability = uint8(availability)
	}
	if layerID, ok, err := optionalUint32(fields, keyLayerID); err != nil {
		return nil, err
	} else if ok {
		seg.LayerID = layerID
	}

	scansRaw, ok := fields[keySegmentData]
	if !ok {
		return nil, fmt.Errorf("%w: %s", segment.ErrMissingField, keyName(keySegmentData))
	}
	scanList, ok := scansRaw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", segment.ErrTypeMismatch, keyName(keySegmentData))
	}
	if len(scanList) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", segment.ErrMalformedTelegram, keyName(keySegmentData))
	}
	for i, scanRaw := range scanList {
		scan, err := decodeScan(scanRaw)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		seg.Scans = append(seg.Scans, *scan)
	}

	return seg, nil
}

// decodeScan parses a single scan map into a Scan, validating its declared
// dimensions against the channel arrays.
func decodeScan(raw interface{}) (*segment.Scan, error) {
	fields, err := asKeyedMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: scan entry is not a map", segment.ErrTypeMismatch)
	}

	scan := &segment.Scan{}
	if scan.TimestampStart, err = requireUint(fields, keyTimestampStart); err != nil {
		return nil, err
	}
	if scan.TimestampStop, err = requireUint(fields, keyTimestampStop); err != nil {
		return nil, err
	}
	if scan.ThetaStart, err = requireFloat(fields, keyThetaStart); err != nil {
		return nil, err
	}
	if scan.ThetaStop, err = requireFloat(fields, keyThetaStop); err != nil {
		return nil, err
	}
	if scan.Phi, err = requireFloat(fields, keyPhi); err != nil {
		return nil, err
	}
	if scan.BeamCount, err = requireUint32(fields, keyBeamCount); err != nil {
		return nil, err
	}
	if scan.EchoCount, err = requireUint32(fields, keyEchoCount); err != nil {
		return nil, err
	}
	if scanNumber, ok, err := optionalUint32(fields, keyScanNumber); err != nil {
		return nil, err
	} else if ok {
		scan.ScanNumber = scanNumber
	}
	if moduleID, ok, err := optionalUint32(fields, keyModuleID); err != nil {
		return nil, err
	} else if ok {
		scan.ModuleID = moduleID
	}

	distRaw, ok := fields[keyDistance]
	if !ok {
		return nil, fmt.Errorf("%w: %s", segment.ErrMissingField, keyName(keyDistance))
	}
	if scan.Distance, err = decodeEchoMatrixFloat(distRaw, scan.EchoCount, scan.BeamCount, keyDistance); err != nil {
		return nil, err
	}

	if rssiRaw, ok := fields[keyRssi]; ok {
		if scan.Rssi, err = decodeEchoMatrixUint16(rssiRaw, scan.EchoCount, scan.BeamCount); err != nil {
			return nil, err
		}
	}
	if propsRaw, ok := fields[keyProperties]; ok {
		if scan.Properties, err = decodeUint8Array(propsRaw, scan.BeamCount, keyProperties); err != nil {
			return nil, err
		}
	}
	if thetaRaw, ok := fields[keyChannelTheta]; ok {
		if scan.ChannelTheta, err = decodeFloat32Array(thetaRaw, scan.BeamCount, keyChannelTheta); err != nil {
			return nil, err
		}
	}

	return scan, nil
}

func decodeEchoMatrixFloat(raw interface{}, echos, beams uint32, key int64) ([][]float32, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", segment.ErrTypeMismatch, keyName(key))
	}
	if uint32(len(rows)) != echos {
		return nil, fmt.Errorf("%w: %s has %d echo rows, EchoCount declares %d",
			segment.ErrTypeMismatch, keyName(key), len(rows), echos)
	}
	out := make([][]float32, len(rows))
	for i, row := range rows {
		values, err := decodeFloat32Array(row, beams, key)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func decodeEchoMatrixUint16(raw interface{}, echos, beams uint32) ([][]uint16, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", segment.ErrTypeMismatch, keyName(keyRssi))
	}
	if uint32(len(rows)) != echos {
		return nil, fmt.Errorf("%w: %s has %d echo rows, EchoCount declares %d",
			segment.ErrTypeMismatch, keyName(keyRssi), len(rows), echos)
	}
	out := make([][]uint16, len(rows))
	for i, row := range rows {
		items, ok := row.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d is not a list", segment.ErrTypeMismatch, keyName(keyRssi), i)
		}
		if uint32(len(items)) != beams {
			return nil, fmt.Errorf("%w: %s row %d has %d beams, BeamCount declares %d",
				segment.ErrTypeMismatch, keyName(keyRssi), i, len(items), beams)
		}
		values := make([]uint16, len(items))
		for j, item := range items {
			v, ok := toUint64(item)
			if !ok {
				return nil, fmt.Errorf("%w: %s value is not an unsigned integer", segment.ErrTypeMismatch, keyName(keyRssi))
			}
			values[j] = uint16(v)
		}
		out[i] = values
	}
	return out, nil
}

func decodeFloat32Array(raw interface{}, beams uint32, key int64) ([]float32, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", segment.ErrTypeMismatch, keyName(key))
	}
	if uint32(len(items)) != beams {
		return nil, fmt.Errorf("%w: %s has %d values, BeamCount declares %d",
			segment.ErrTypeMismatch, keyName(key), len(items), beams)
	}
	out := make([]float32, len(items))
	for i, item := range items {
		v, ok := toFloat64(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s value is not a number", segment.ErrTypeMismatch, keyName(key))
		}
		out[i] = float32(v)
	}
	return out, nil
}

func decodeUint8Array(raw interface{}, beams uint32, key int64) ([]uint8, error) {
	// Byte arrays travel as msgpack bin and decode to []byte directly.
	if bin, ok := raw.([]byte); ok {
		if uint32(len(bin)) != beams {
			return nil, fmt.Errorf("%w: %s has %d values, BeamCount declares %d",
				segment.ErrTypeMismatch, keyName(key), len(bin), beams)
		}
		return append([]uint8(nil), bin...), nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", segment.ErrTypeMismatch, keyName(key))
	}
	if uint32(len(items)) != beams {
		return nil, fmt.Errorf("%w: %s has %d values, BeamCount declares %d",
			segment.ErrTypeMismatch, keyName(key), len(items), beams)
	}
	out := make([]uint8, len(items))
	for i, item := range items {
		v, ok := toUint64(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s value is not an unsigned integer", segment.ErrTypeMismatch, keyName(key))
		}
		out[i] = uint8(v)
	}
	return out, nil
}
