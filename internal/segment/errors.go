package segment

import "errors"

// Error kinds observable by callers. Decoders and transports wrap these with
// context via fmt.Errorf("...: %w", ...); callers match with errors.Is.
var (
	// ErrTransportClosed reports that the underlying socket ended or was
	// closed while a telegram was still incomplete.
	ErrTransportClosed = errors.New("transport closed")

	// ErrMalformedTelegram reports a bad start-of-frame magic, a truncated
	// body, or impossible field dimensions.
	ErrMalformedTelegram = errors.New("malformed telegram")

	// ErrUnsupportedVersion reports a COMPACT telegram with a version other
	// than 4.
	ErrUnsupportedVersion = errors.New("unsupported telegram version")

	// ErrCrcMismatch reports that the computed checksum does not match the
	// trailing CRC word.
	ErrCrcMismatch = errors.New("crc mismatch")

	// ErrMissingField reports an absent mandatory key in a MSGPACK telegram.
	ErrMissingField = errors.New("missing field")

	// ErrTypeMismatch reports a MSGPACK value whose type or dimensions
	// contradict the schema.
	ErrTypeMismatch = errors.New("type mismatch")
)
