// Package msgpack decodes MSGPACK-encoded scan-segment telegrams and re-frames
// them from byte streams.
//
// A telegram body is a one-entry map whose single key is the constant 1 (or
// the string "data"); its value is a map of segment fields including a list of
// scan maps. Sensors in the field emit both integer-keyed and string-keyed
// maps, so every key is resolved through one fixed lookup table.
package msgpack

// Integer key codes of the on-wire maps.
const (
	keyData = 1 // outermost map's single key

	// Segment fields.
	keyTelegramCounter   = 2
	keyTimestampTransmit = 3
	keySegmentCounter    = 4
	keyFrameNumber       = 5
	keySenderID          = 6
	keyAvailability      = 7
	keyLayerID           = 8
	keySegmentData       = 9

	// Scan fields.
	keyTimestampStart = 20
	keyTimestampStop  = 21
	keyThetaStart     = 22
	keyThetaStop      = 23
	keyPhi            = 24
	keyDistance       = 25
	keyRssi           = 26
	keyProperties     = 27
	keyChannelTheta   = 28
	keyBeamCount      = 29
	keyEchoCount      = 30
	keyScanNumber     = 31
	keyModuleID       = 32
)

// stringKeys maps the string spellings of the wire schema to their integer
// codes. The decoder normalises every map key through this table so the rest
// of the code only ever sees integer codes.
var stringKeys = map[string]int64{
	"data": keyData,

	"TelegramCounter":   keyTelegramCounter,
	"TimestampTransmit": keyTimestampTransmit,
	"SegmentCounter":    keySegmentCounter,
	"FrameNumber":       keyFrameNumber,
	"SenderId":          keySenderID,
	"Availability":      keyAvailability,
	"LayerId":           keyLayerID,
	"SegmentData":       keySegmentData,

	"TimestampStart": keyTimestampStart,
	"TimestampStop":  keyTimestampStop,
	"ThetaStart":     keyThetaStart,
	"ThetaStop":      keyThetaStop,
	"Phi":            keyPhi,
	"Distance":       keyDistance,
	"Rssi":           keyRssi,
	"Properties":     keyProperties,
	"ChannelTheta":   keyChannelTheta,
	"BeamCount":      keyBeamCount,
	"EchoCount":      keyEchoCount,
	"ScanNumber":     keyScanNumber,
	"ModuleID":       keyModuleID,
}

// keyNames is the reverse table, used in error messages.
var keyNames = func() map[int64]string {
	names := make(map[int64]string, len(stringKeys))
	for name, code := range stringKeys {
		names[code] = name
	}
	return names
}()

func keyName(code int64) string {
	if name, ok := keyNames[code]; ok {
		return name
	}
	return "unknown"
}
