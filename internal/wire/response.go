package wire

import "github.com/kvgrid/kvgrid/internal/kvdomain"

// EncodeResponse serializes a Response: either a result (+ optional
// commit token) or a failure code, plus the optional topology/group-state
// delta the recipient should absorb.
func EncodeResponse(resp *kvdomain.Response) ([]byte, error) {
	w := &writer{}

	if resp.OK() {
		w.u8(1)
		w.bytesField(resp.Result)
		if resp.Token != nil {
			w.u8(1)
			EncodeCommitTokenInto(w, *resp.Token)
		} else {
			w.u8(0)
		}
	} else {
		w.u8(0)
		w.stringField(string(resp.Err.Code))
		w.stringField(resp.Err.Message)
	}

	if resp.Delta != nil && resp.Delta.Topology != nil {
		w.u8(1)
		w.bytesField(EncodeTopology(resp.Delta.Topology))
	} else {
		w.u8(0)
	}

	if resp.Delta != nil && resp.Delta.GroupState != nil {
		w.u8(1)
		w.bytesField(EncodeGroupState(resp.Delta.GroupState))
	} else {
		w.u8(0)
	}

	return w.bytes(), nil
}

// DecodeResponse parses a response body previously produced by
// EncodeResponse.
func DecodeResponse(body []byte) (*kvdomain.Response, error) {
	r := newReader(body)
	resp := &kvdomain.Response{}

	ok, err := r.u8()
	if err != nil {
		return nil, err
	}
	if ok != 0 {
		if resp.Result, err = r.bytesField(); err != nil {
			return nil, err
		}
		hasToken, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasToken != 0 {
			tok, err := DecodeCommitTokenFrom(r)
			if err != nil {
				return nil, err
			}
			resp.Token = &tok
		}
	} else {
		code, err := r.stringField()
		if err != nil {
			return nil, err
		}
		msg, err := r.stringField()
		if err != nil {
			return nil, err
		}
		resp.Err = &kvdomain.Error{Code: kvdomain.Code(code), Message: msg}
	}

	hasTopo, err := r.u8()
	if err != nil {
		return nil, err
	}
	var delta kvdomain.Delta
	haveDelta := false
	if hasTopo != 0 {
		topoBytes, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		topo, err := DecodeTopology(topoBytes)
		if err != nil {
			return nil, err
		}
		delta.Topology = topo
		haveDelta = true
	}

	hasGroup, err := r.u8()
	if err != nil {
		return nil, err
	}
	if hasGroup != 0 {
		gsBytes, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		gs, err := DecodeGroupState(gsBytes)
		if err != nil {
			return nil, err
		}
		delta.GroupState = gs
		haveDelta = true
	}

	if haveDelta {
		resp.Delta = &delta
	}

	return resp, nil
}
