package wire

import (
	"fmt"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// consistency tag values on the wire (field 5, read branch).
const (
	tagAbsolute           uint8 = 0
	tagNoneRequiredNoMaster uint8 = 1
	tagNoneRequired       uint8 = 2
	tagTime               uint8 = 3
	tagToken              uint8 = 4
)

// EncodeRequest encodes a Request's 15-field positional wire layout.
func EncodeRequest(r *kvdomain.Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	w := &writer{}
	w.u16(r.SerialVersion)                // 1
	w.i32(int32(r.Partition))             // 2
	w.i32(int32(r.Group))                 // 3

	if r.Write {
		w.u8(1) // 4
	} else {
		w.u8(0)
	}

	if r.Write { // 5
		d := r.Durability
		w.u8(uint8(d.Sync))
		w.u8(uint8(d.ReplicaAck))
		w.u8(uint8(d.ReplicaSync))
	} else {
		c := r.Consistency
		switch c.Level {
		case kvdomain.ConsistencyAbsolute:
			w.u8(tagAbsolute)
		case kvdomain.ConsistencyNoneRequiredNoMaster:
			w.u8(tagNoneRequiredNoMaster)
		case kvdomain.ConsistencyNoneRequired:
			w.u8(tagNoneRequired)
		case kvdomain.ConsistencyTime:
			w.u8(tagTime)
			w.i64(c.AtLeastTimeMS)
		case kvdomain.ConsistencyToken:
			w.u8(tagToken)
			EncodeCommitTokenInto(w, c.AtLeastToken)
		default:
			return nil, fmt.Errorf("wire: unknown consistency level %d", c.Level)
		}
	}

	w.i32(r.TTL) // 6

	if len(r.ForwardingChain) > 127 { // 7
		return nil, fmt.Errorf("wire: forwarding chain length %d exceeds 127", len(r.ForwardingChain))
	}
	w.u8(uint8(len(r.ForwardingChain)))
	for _, idx := range r.ForwardingChain {
		w.u8(idx)
	}

	w.i32(r.TimeoutMS)         // 8
	w.i32(int32(r.TopoSeq))    // 9

	w.stringField(r.DispatcherID.Kind) // 10
	w.stringField(r.DispatcherID.Value)

	w.bytesField(r.Payload) // 11

	w.i32(int32(len(r.ReadZones))) // 12
	for _, z := range r.ReadZones {
		w.i32(int32(z))
	}

	if r.Auth != nil { // 13
		w.u8(1)
		w.bytesField(r.Auth.SessionToken)
	} else {
		w.u8(0)
	}

	if r.Log != nil { // 14
		w.u8(1)
		w.stringField(r.Log.TraceID)
	} else {
		w.u8(0)
	}

	if r.NoCharge { // 15
		w.u8(1)
	} else {
		w.u8(0)
	}

	return w.bytes(), nil
}

// DecodeRequest parses a request body previously produced by EncodeRequest.
func DecodeRequest(body []byte) (*kvdomain.Request, error) {
	r := newReader(body)
	req := &kvdomain.Request{}

	var err error
	if req.SerialVersion, err = r.u16(); err != nil {
		return nil, err
	}
	if req.SerialVersion > kvdomain.SerialVersion {
		return nil, kvdomain.ErrUnsupportedVersion
	}

	p, err := r.i32()
	if err != nil {
		return nil, err
	}
	req.Partition = kvdomain.PartitionID(p)

	g, err := r.i32()
	if err != nil {
		return nil, err
	}
	req.Group = kvdomain.GroupID(g)

	writeFlag, err := r.u8()
	if err != nil {
		return nil, err
	}
	req.Write = writeFlag != 0

	if req.Write {
		sync, err := r.u8()
		if err != nil {
			return nil, err
		}
		ack, err := r.u8()
		if err != nil {
			return nil, err
		}
		rsync, err := r.u8()
		if err != nil {
			return nil, err
		}
		req.Durability = &kvdomain.Durability{
			Sync:        kvdomain.SyncPolicy(sync),
			ReplicaAck:  kvdomain.ReplicaAckPolicy(ack),
			ReplicaSync: kvdomain.ReplicaSyncPolicy(rsync),
		}
	} else {
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		c := &kvdomain.ConsistencyPolicy{}
		switch tag {
		case tagAbsolute:
			c.Level = kvdomain.ConsistencyAbsolute
		case tagNoneRequiredNoMaster:
			c.Level = kvdomain.ConsistencyNoneRequiredNoMaster
		case tagNoneRequired:
			c.Level = kvdomain.ConsistencyNoneRequired
		case tagTime:
			c.Level = kvdomain.ConsistencyTime
			if c.AtLeastTimeMS, err = r.i64(); err != nil {
				return nil, err
			}
		case tagToken:
			c.Level = kvdomain.ConsistencyToken
			if c.AtLeastToken, err = DecodeCommitTokenFrom(r); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wire: unknown consistency tag %d", tag)
		}
		req.Consistency = c
	}

	if req.TTL, err = r.i32(); err != nil {
		return nil, err
	}

	chainLen, err := r.u8()
	if err != nil {
		return nil, err
	}
	if chainLen > 0 {
		req.ForwardingChain = make([]uint8, chainLen)
		for i := range req.ForwardingChain {
			if req.ForwardingChain[i], err = r.u8(); err != nil {
				return nil, err
			}
		}
	}

	if req.TimeoutMS, err = r.i32(); err != nil {
		return nil, err
	}
	seq, err := r.i32()
	if err != nil {
		return nil, err
	}
	req.TopoSeq = uint64(seq)

	if req.DispatcherID.Kind, err = r.stringField(); err != nil {
		return nil, err
	}
	if req.DispatcherID.Value, err = r.stringField(); err != nil {
		return nil, err
	}

	if req.Payload, err = r.bytesField(); err != nil {
		return nil, err
	}

	zoneCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	if zoneCount > 0 {
		req.ReadZones = make([]kvdomain.ZoneID, zoneCount)
		for i := range req.ReadZones {
			z, err := r.i32()
			if err != nil {
				return nil, err
			}
			req.ReadZones[i] = kvdomain.ZoneID(z)
		}
	}

	hasAuth, err := r.u8()
	if err != nil {
		return nil, err
	}
	if hasAuth != 0 {
		tok, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		req.Auth = &kvdomain.AuthContext{SessionToken: tok}
	}

	hasLog, err := r.u8()
	if err != nil {
		return nil, err
	}
	if hasLog != 0 {
		trace, err := r.stringField()
		if err != nil {
			return nil, err
		}
		req.Log = &kvdomain.LogContext{TraceID: trace}
	}

	noCharge, err := r.u8()
	if err != nil {
		return nil, err
	}
	req.NoCharge = noCharge != 0

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
