package kvdomain

import "fmt"

// SerialVersion is the current wire version this build speaks. Requests
// tagged with a lower version are accepted (best-effort backward compat);
// requests tagged with a higher one are rejected with UNSUPPORTED_VERSION
// by the receiving handler, never by the constructor here.
const SerialVersion uint16 = 1

// SyncPolicy controls how a write is flushed to the local log before the
// node acknowledges it.
type SyncPolicy uint8

const (
	SyncWriteNoSync SyncPolicy = iota
	SyncWriteSync
	SyncWriteNoSyncGroup // batched: fsync deferred to a group-commit window
)

// ReplicaAckPolicy controls how many replicas must acknowledge a write.
type ReplicaAckPolicy uint8

const (
	AckNone ReplicaAckPolicy = iota
	AckSimpleMajority
	AckAll
)

// ReplicaSyncPolicy controls how a replica durably applies a replicated
// write before it counts toward ReplicaAckPolicy.
type ReplicaSyncPolicy uint8

const (
	ReplicaSyncNoSync ReplicaSyncPolicy = iota
	ReplicaSyncWriteNoSync
	ReplicaSyncSync
)

// Durability bundles the three knobs a write request uses to describe how
// durably it must be applied before the caller gets an acknowledgment.
type Durability struct {
	Sync        SyncPolicy
	ReplicaAck  ReplicaAckPolicy
	ReplicaSync ReplicaSyncPolicy
}

// DefaultDurability is the durability applied when a caller doesn't name
// one explicitly.
var DefaultDurability = Durability{
	Sync:        SyncWriteSync,
	ReplicaAck:  AckSimpleMajority,
	ReplicaSync: ReplicaSyncWriteNoSync,
}

// Consistency names the read consistency contract for a non-write request.
type Consistency uint8

const (
	// ConsistencyAbsolute requires routing to the current master.
	ConsistencyAbsolute Consistency = iota
	// ConsistencyNoneRequiredNoMaster requires routing to a non-master
	// replica specifically (used to deliberately offload reads from the
	// master).
	ConsistencyNoneRequiredNoMaster
	// ConsistencyNoneRequired allows any replica, subject to read-zone
	// filtering.
	ConsistencyNoneRequired
	// ConsistencyTime requires a replica whose applied commit time is at
	// or after Params.AtLeastTimeMS.
	ConsistencyTime
	// ConsistencyToken requires a replica that has applied at least the
	// given CommitToken.
	ConsistencyToken
)

// ConsistencyPolicy bundles a Consistency tag with the parameters that tag
// requires, carried on every non-write request in place of Durability.
type ConsistencyPolicy struct {
	Level Consistency
	// AtLeastTimeMS is used when Level == ConsistencyTime.
	AtLeastTimeMS int64
	// AtLeastToken is used when Level == ConsistencyToken.
	AtLeastToken CommitToken
	// PartialComparator is an opaque byte-comparator hook for callers that
	// need partial-update read semantics. kvgrid never inspects it; it is
	// carried through to the operation payload decoder unexamined.
	PartialComparator func(a, b []byte) int
}

// DefaultConsistency is applied when a caller doesn't name a consistency
// policy explicitly.
var DefaultConsistency = ConsistencyPolicy{Level: ConsistencyNoneRequired}

// AuthContext is the opaque authentication token attached to a Request,
// populated by internal/login.
type AuthContext struct {
	SessionToken []byte
}

// LogContext carries operator trace correlation, opaque to routing.
type LogContext struct {
	TraceID string
}

// Request is the wire-serializable unit of work a client dispatcher sends
// and a node's handler executes.
type Request struct {
	SerialVersion uint16

	Partition PartitionID
	Group     GroupID

	Write bool

	Durability  *Durability
	Consistency *ConsistencyPolicy

	TTL int32

	// ForwardingChain holds the group-relative indices of nodes this
	// request has already visited within its current group.
	ForwardingChain []uint8

	TimeoutMS int32
	TopoSeq   uint64

	// DispatcherID never changes through forwards.
	DispatcherID ResourceID

	Payload []byte

	// ReadZones: empty or containing only 0 means "no restriction".
	// Ignored for writes.
	ReadZones []ZoneID

	Auth *AuthContext
	Log  *LogContext

	NoCharge bool

	// needsMaster is a transient, server-set flag: set by a replica
	// handler that has learned a partition migrated in but isn't yet open
	// locally, so the client dispatcher re-routes to master on the next
	// attempt. It is never part of the invariant-enforcing constructor's
	// input and is not wire-encoded by the client; only a handler sets it
	// on a Request it is about to forward back.
	needsMaster bool
}

// NewRequest builds a Request and enforces its invariants: a write sets
// durability and leaves consistency and read-zones unset; a read sets
// consistency and leaves durability unset; exactly one of {partition,
// group} is non-NULL.
func NewRequest(partition PartitionID, group GroupID, write bool, payload []byte) (*Request, error) {
	if !partition.IsNull() && !group.IsNull() {
		return nil, Wrap(ErrWrongShard, nil, "request names both a partition and a group")
	}
	if partition.IsNull() && group.IsNull() {
		return nil, Wrap(ErrWrongShard, nil, "request names neither a partition nor a group")
	}
	r := &Request{
		SerialVersion: SerialVersion,
		Partition:     partition,
		Group:         group,
		Write:         write,
		Payload:       payload,
	}
	if write {
		d := DefaultDurability
		r.Durability = &d
	} else {
		c := DefaultConsistency
		r.Consistency = &c
	}
	return r, nil
}

// Validate re-checks the invariants, for use on a Request decoded off the
// wire (a hostile or buggy peer may have violated them).
func (r *Request) Validate() error {
	if !r.Partition.IsNull() && !r.Group.IsNull() {
		return Wrap(ErrWrongShard, nil, "request names both a partition and a group")
	}
	if r.Partition.IsNull() && r.Group.IsNull() {
		return Wrap(ErrWrongShard, nil, "request names neither a partition nor a group")
	}
	if r.Write {
		if r.Durability == nil {
			return Wrap(ErrWrongShard, nil, "write request missing durability")
		}
		if r.Consistency != nil {
			return Wrap(ErrWrongShard, nil, "write request must not set consistency")
		}
		if len(r.ReadZones) != 0 {
			return Wrap(ErrWrongShard, nil, "write request must not set read-zones")
		}
	} else {
		if r.Consistency == nil {
			return Wrap(ErrWrongShard, nil, "read request missing consistency")
		}
		if r.Durability != nil {
			return Wrap(ErrWrongShard, nil, "read request must not set durability")
		}
	}
	return nil
}

// NeedsMaster reports whether this request must be served by the current
// master: true for any write, any ABSOLUTE-consistency read, or a read a
// handler has flagged via SetNeedsMaster.
func (r *Request) NeedsMaster() bool {
	if r.Write {
		return true
	}
	if r.needsMaster {
		return true
	}
	if r.Consistency != nil && r.Consistency.Level == ConsistencyAbsolute {
		return true
	}
	return false
}

// SetNeedsMaster is called by a handler that wants the client to re-route
// to master on its next attempt.
func (r *Request) SetNeedsMaster() { r.needsMaster = true }

// DecrementTTL fails with TTL_EXCEEDED when the TTL would drop below zero.
func (r *Request) DecrementTTL() error {
	if r.TTL <= 0 {
		return ErrTTLExceeded
	}
	r.TTL--
	return nil
}

// UpdateForwardingChain appends nodeIndex to the chain when forwarding
// within the same group, or resets the chain when forwarding across
// groups. It refuses a within-group append that would introduce a loop
// or exceed groupSize.
func (r *Request) UpdateForwardingChain(nodeIndex uint8, sameGroup bool, groupSize int) error {
	if !sameGroup {
		r.ForwardingChain = nil
		return nil
	}
	if len(r.ForwardingChain) >= groupSize || len(r.ForwardingChain) >= 127 {
		return ErrUnreachable
	}
	for _, idx := range r.ForwardingChain {
		if idx == nodeIndex {
			return ErrUnreachable
		}
	}
	r.ForwardingChain = append(r.ForwardingChain, nodeIndex)
	return nil
}

func (r *Request) String() string {
	target := fmt.Sprintf("partition=%d", r.Partition)
	if !r.Group.IsNull() {
		target = fmt.Sprintf("group=%d", r.Group)
	}
	return fmt.Sprintf("Request{%s write=%v ttl=%d chain=%v}", target, r.Write, r.TTL, r.ForwardingChain)
}
