package wire

import "github.com/kvgrid/kvgrid/internal/kvdomain"

// EncodeCommitToken encodes a commit token as a 16-byte environment UUID
// followed by an 8-byte log sequence number.
func EncodeCommitToken(t kvdomain.CommitToken) []byte {
	w := &writer{}
	EncodeCommitTokenInto(w, t)
	return w.bytes()
}

// EncodeCommitTokenInto writes a token into an in-progress message, used
// when a token is embedded inside a larger field (e.g. a ConsistencyToken
// read request, or a Response's result envelope).
func EncodeCommitTokenInto(w *writer, t kvdomain.CommitToken) {
	w.buf.Write(t.Env[:])
	w.u64(t.LSN)
}

// DecodeCommitToken parses a standalone 24-byte commit token.
func DecodeCommitToken(body []byte) (kvdomain.CommitToken, error) {
	return DecodeCommitTokenFrom(newReader(body))
}

// DecodeCommitTokenFrom reads a token from an in-progress reader.
func DecodeCommitTokenFrom(r *reader) (kvdomain.CommitToken, error) {
	var t kvdomain.CommitToken
	if err := r.need(16); err != nil {
		return t, err
	}
	copy(t.Env[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	lsn, err := r.u64()
	if err != nil {
		return t, err
	}
	t.LSN = lsn
	return t, nil
}
