package wire

import (
	"reflect"
	"testing"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	token := kvdomain.CommitToken{Env: kvdomain.EnvironmentUUID{1, 2, 3}, LSN: 1001}

	t.Run("success with token and no delta", func(t *testing.T) {
		resp := kvdomain.NewResultResponse([]byte("ok"), &token)
		body, err := EncodeResponse(resp)
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		got, err := DecodeResponse(body)
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		if !reflect.DeepEqual(got, resp) {
			t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, resp)
		}
	})

	t.Run("failure with topology and group-state delta", func(t *testing.T) {
		topo := kvdomain.NewTopology(4)
		topo.Seq = 5
		topo.Partitions[7] = 2
		topo.Groups[2] = []kvdomain.NodeID{{Group: 2, Index: 0}, {Group: 2, Index: 1}}
		topo.Nodes[kvdomain.NodeID{Group: 2, Index: 0}] = kvdomain.Endpoint{Host: "10.0.0.1", Port: 7001, Zone: 1}
		topo.Zones["us-east"] = 1

		gs := &kvdomain.GroupState{Group: 2, Master: kvdomain.NodeID{Group: 2, Index: 0}, HasMaster: true}

		resp := kvdomain.NewErrorResponse(kvdomain.ErrWrongShard, &kvdomain.Delta{Topology: topo, GroupState: gs})
		body, err := EncodeResponse(resp)
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		got, err := DecodeResponse(body)
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		if got.Err.Code != resp.Err.Code {
			t.Fatalf("err code = %v, want %v", got.Err.Code, resp.Err.Code)
		}
		if !reflect.DeepEqual(got.Delta.Topology, topo) {
			t.Fatalf("topology mismatch:\n got  %+v\n want %+v", got.Delta.Topology, topo)
		}
		if !reflect.DeepEqual(got.Delta.GroupState, gs) {
			t.Fatalf("group state mismatch:\n got  %+v\n want %+v", got.Delta.GroupState, gs)
		}
	})
}

func TestCommitTokenWireRoundTrip(t *testing.T) {
	tok := kvdomain.CommitToken{Env: kvdomain.EnvironmentUUID{0xAA, 0xBB}, LSN: 99999}
	body := EncodeCommitToken(tok)
	got, err := DecodeCommitToken(body)
	if err != nil {
		t.Fatalf("DecodeCommitToken: %v", err)
	}
	if got != tok {
		t.Fatalf("got %+v, want %+v", got, tok)
	}
}
