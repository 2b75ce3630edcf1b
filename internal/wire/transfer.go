package wire

import (
	"fmt"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// PartitionPullRequest is the body of a MsgPartitionPull frame: a target
// group's master asking a source group's master for every key currently
// stored under one partition — the data-transfer step the
// master-to-master control calls describe but don't themselves carry.
type PartitionPullRequest struct {
	Partition kvdomain.PartitionID
}

// KVPair is one key/value stored under the pulled partition.
type KVPair struct {
	Key   []byte
	Value []byte
}

// PartitionPullResponse is the body of a MsgPartitionPullAck frame. Cause
// is set instead of Pairs when the source could not serve the pull (it
// is no longer that partition's owner, for instance).
type PartitionPullResponse struct {
	Pairs []KVPair
	Cause *kvdomain.Error
}

// EncodePartitionPullRequest serializes a PartitionPullRequest.
func EncodePartitionPullRequest(req *PartitionPullRequest) []byte {
	w := &writer{}
	w.i32(int32(req.Partition))
	return w.bytes()
}

// DecodePartitionPullRequest parses a body produced by
// EncodePartitionPullRequest.
func DecodePartitionPullRequest(body []byte) (*PartitionPullRequest, error) {
	r := newReader(body)
	partition, err := r.i32()
	if err != nil {
		return nil, err
	}
	return &PartitionPullRequest{Partition: kvdomain.PartitionID(partition)}, nil
}

// EncodePartitionPullResponse serializes a PartitionPullResponse. A whole
// partition's contents ride in a single frame (bounded by MaxFrameBytes),
// which is adequate for the partition sizes this system targets but caps
// how large a single migratable partition can grow.
func EncodePartitionPullResponse(resp *PartitionPullResponse) []byte {
	w := &writer{}
	if resp.Cause != nil {
		w.u8(1)
		w.stringField(string(resp.Cause.Code))
		w.stringField(resp.Cause.Message)
	} else {
		w.u8(0)
	}
	w.i32(int32(len(resp.Pairs)))
	for _, kv := range resp.Pairs {
		w.bytesField(kv.Key)
		w.bytesField(kv.Value)
	}
	return w.bytes()
}

// DecodePartitionPullResponse parses a body produced by
// EncodePartitionPullResponse.
func DecodePartitionPullResponse(body []byte) (*PartitionPullResponse, error) {
	r := newReader(body)

	hasCause, err := r.u8()
	if err != nil {
		return nil, err
	}
	resp := &PartitionPullResponse{}
	if hasCause != 0 {
		code, err := r.stringField()
		if err != nil {
			return nil, err
		}
		msg, err := r.stringField()
		if err != nil {
			return nil, err
		}
		resp.Cause = &kvdomain.Error{Code: kvdomain.Code(code), Message: msg}
	}

	count, err := r.i32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("wire: negative pair count %d", count)
	}
	resp.Pairs = make([]KVPair, 0, count)
	for i := int32(0); i < count; i++ {
		key, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		value, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		resp.Pairs = append(resp.Pairs, KVPair{Key: key, Value: value})
	}

	return resp, nil
}
