// Package wire implements the hand-rolled binary codec for kvgrid's
// client/node protocol: a 4-byte big-endian length prefix, a 4-byte CRC32
// checksum, a 1-byte message type, then a positional byte layout for the
// message body. The framing idiom (length header + CRC32 +
// encoding/binary.BigEndian) follows the same shape used elsewhere in
// this codebase for on-disk entry framing, adapted here for
// request/response messages on a net.Conn instead of log entries on
// disk.
package wire
