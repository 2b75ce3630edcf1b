package wire

import (
	"reflect"
	"testing"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		req  *kvdomain.Request
	}{
		{
			name: "simple write",
			req: &kvdomain.Request{
				SerialVersion:   kvdomain.SerialVersion,
				Partition:       7,
				Group:           kvdomain.GroupID(kvdomain.NullID),
				Write:           true,
				Durability:      &kvdomain.Durability{Sync: kvdomain.SyncWriteSync, ReplicaAck: kvdomain.AckSimpleMajority, ReplicaSync: kvdomain.ReplicaSyncWriteNoSync},
				TTL:             3,
				ForwardingChain: []uint8{1, 2},
				TimeoutMS:       5000,
				TopoSeq:         42,
				DispatcherID:    kvdomain.ResourceID{Kind: "client", Value: "c-1"},
				Payload:         []byte("put key=val"),
				Auth:            &kvdomain.AuthContext{SessionToken: []byte("tok")},
				Log:             &kvdomain.LogContext{TraceID: "trace-1"},
				NoCharge:        true,
			},
		},
		{
			name: "relaxed read with zone filter",
			req: &kvdomain.Request{
				SerialVersion: kvdomain.SerialVersion,
				Partition:     kvdomain.PartitionID(kvdomain.NullID),
				Group:         5,
				Write:         false,
				Consistency:   &kvdomain.ConsistencyPolicy{Level: kvdomain.ConsistencyNoneRequired},
				TTL:           1,
				TimeoutMS:     1000,
				TopoSeq:       7,
				DispatcherID:  kvdomain.ResourceID{Kind: "client", Value: "c-2"},
				Payload:       []byte("get key"),
				ReadZones:     []kvdomain.ZoneID{1, 2, 3},
			},
		},
		{
			name: "token consistency read",
			req: &kvdomain.Request{
				SerialVersion: kvdomain.SerialVersion,
				Partition:     2,
				Group:         kvdomain.GroupID(kvdomain.NullID),
				Write:         false,
				Consistency: &kvdomain.ConsistencyPolicy{
					Level:        kvdomain.ConsistencyToken,
					AtLeastToken: kvdomain.CommitToken{Env: kvdomain.EnvironmentUUID{9, 9, 9}, LSN: 55},
				},
				TTL:          0,
				TimeoutMS:    2000,
				DispatcherID: kvdomain.ResourceID{Kind: "client", Value: "c-3"},
				Payload:      []byte{},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, err := EncodeRequest(tc.req)
			if err != nil {
				t.Fatalf("EncodeRequest: %v", err)
			}
			got, err := DecodeRequest(body)
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if !reflect.DeepEqual(got, tc.req) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, tc.req)
			}
		})
	}
}

func TestDecodeRequestRejectsFutureSerialVersion(t *testing.T) {
	req := &kvdomain.Request{
		SerialVersion: kvdomain.SerialVersion + 1,
		Partition:     1,
		Group:         kvdomain.GroupID(kvdomain.NullID),
		Write:         false,
		Consistency:   &kvdomain.ConsistencyPolicy{Level: kvdomain.ConsistencyNoneRequired},
		DispatcherID:  kvdomain.ResourceID{Kind: "client", Value: "c"},
	}
	w := &writer{}
	w.u16(req.SerialVersion)
	w.i32(int32(req.Partition))
	w.i32(int32(req.Group))
	w.u8(0)
	w.u8(tagNoneRequired)
	w.i32(req.TTL)
	w.u8(0)
	w.i32(req.TimeoutMS)
	w.i32(int32(req.TopoSeq))
	w.stringField(req.DispatcherID.Kind)
	w.stringField(req.DispatcherID.Value)
	w.bytesField(req.Payload)
	w.i32(0)
	w.u8(0)
	w.u8(0)
	w.u8(0)

	if _, err := DecodeRequest(w.bytes()); err != kvdomain.ErrUnsupportedVersion {
		t.Fatalf("expected UNSUPPORTED_VERSION, got %v", err)
	}
}

func TestEncodeRequestRejectsOversizeForwardingChain(t *testing.T) {
	chain := make([]uint8, 128)
	req := &kvdomain.Request{
		SerialVersion:   kvdomain.SerialVersion,
		Partition:       1,
		Group:           kvdomain.GroupID(kvdomain.NullID),
		Write:           false,
		Consistency:     &kvdomain.ConsistencyPolicy{Level: kvdomain.ConsistencyNoneRequired},
		ForwardingChain: chain,
		DispatcherID:    kvdomain.ResourceID{Kind: "client", Value: "c"},
	}
	if _, err := EncodeRequest(req); err == nil {
		t.Fatal("expected error encoding a forwarding chain longer than 127")
	}
}
