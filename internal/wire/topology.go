package wire

import "github.com/kvgrid/kvgrid/internal/kvdomain"

// EncodeTopology serializes a full Topology snapshot for MsgTopologyPush
// and for the topology delta embedded in a Response. The spec leaves the
// wire shape of topology propagation to the implementation (§6 only
// requires that it exist as "a dedicated RPC"); this layout mirrors the
// request codec's positional, length-prefixed style.
func EncodeTopology(t *kvdomain.Topology) []byte {
	w := &writer{}
	w.u64(t.Seq)
	w.i32(t.NumPartitions)

	w.i32(int32(len(t.Partitions)))
	for p, g := range t.Partitions {
		w.i32(int32(p))
		w.i32(int32(g))
	}

	w.i32(int32(len(t.Groups)))
	for g, members := range t.Groups {
		w.i32(int32(g))
		w.u8(uint8(len(members)))
		for _, m := range members {
			w.u8(m.Index)
		}
	}

	w.i32(int32(len(t.Nodes)))
	for n, ep := range t.Nodes {
		w.i32(int32(n.Group))
		w.u8(n.Index)
		w.stringField(ep.Host)
		w.i32(int32(ep.Port))
		w.i32(int32(ep.Zone))
	}

	w.i32(int32(len(t.Zones)))
	for name, id := range t.Zones {
		w.stringField(name)
		w.i32(int32(id))
	}

	return w.bytes()
}

// DecodeTopology parses a Topology encoded by EncodeTopology.
func DecodeTopology(body []byte) (*kvdomain.Topology, error) {
	r := newReader(body)
	t := &kvdomain.Topology{
		Partitions: map[kvdomain.PartitionID]kvdomain.GroupID{},
		Groups:     map[kvdomain.GroupID][]kvdomain.NodeID{},
		Nodes:      map[kvdomain.NodeID]kvdomain.Endpoint{},
		Zones:      map[string]kvdomain.ZoneID{},
	}

	var err error
	if t.Seq, err = r.u64(); err != nil {
		return nil, err
	}
	if t.NumPartitions, err = r.i32(); err != nil {
		return nil, err
	}

	pCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < pCount; i++ {
		p, err := r.i32()
		if err != nil {
			return nil, err
		}
		g, err := r.i32()
		if err != nil {
			return nil, err
		}
		t.Partitions[kvdomain.PartitionID(p)] = kvdomain.GroupID(g)
	}

	gCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < gCount; i++ {
		g, err := r.i32()
		if err != nil {
			return nil, err
		}
		memberCount, err := r.u8()
		if err != nil {
			return nil, err
		}
		members := make([]kvdomain.NodeID, memberCount)
		for j := range members {
			idx, err := r.u8()
			if err != nil {
				return nil, err
			}
			members[j] = kvdomain.NodeID{Group: kvdomain.GroupID(g), Index: idx}
		}
		t.Groups[kvdomain.GroupID(g)] = members
	}

	nCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < nCount; i++ {
		g, err := r.i32()
		if err != nil {
			return nil, err
		}
		idx, err := r.u8()
		if err != nil {
			return nil, err
		}
		host, err := r.stringField()
		if err != nil {
			return nil, err
		}
		port, err := r.i32()
		if err != nil {
			return nil, err
		}
		zone, err := r.i32()
		if err != nil {
			return nil, err
		}
		t.Nodes[kvdomain.NodeID{Group: kvdomain.GroupID(g), Index: idx}] = kvdomain.Endpoint{
			Host: host,
			Port: int(port),
			Zone: kvdomain.ZoneID(zone),
		}
	}

	zCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < zCount; i++ {
		name, err := r.stringField()
		if err != nil {
			return nil, err
		}
		id, err := r.i32()
		if err != nil {
			return nil, err
		}
		t.Zones[name] = kvdomain.ZoneID(id)
	}

	return t, nil
}

// EncodeGroupState serializes a GroupState.
func EncodeGroupState(s *kvdomain.GroupState) []byte {
	w := &writer{}
	w.i32(int32(s.Group))
	w.i32(int32(s.Master.Group))
	w.u8(s.Master.Index)
	if s.HasMaster {
		w.u8(1)
	} else {
		w.u8(0)
	}
	return w.bytes()
}

// DecodeGroupState parses a GroupState encoded by EncodeGroupState.
func DecodeGroupState(body []byte) (*kvdomain.GroupState, error) {
	r := newReader(body)
	s := &kvdomain.GroupState{}

	g, err := r.i32()
	if err != nil {
		return nil, err
	}
	s.Group = kvdomain.GroupID(g)

	mg, err := r.i32()
	if err != nil {
		return nil, err
	}
	mi, err := r.u8()
	if err != nil {
		return nil, err
	}
	s.Master = kvdomain.NodeID{Group: kvdomain.GroupID(mg), Index: mi}

	has, err := r.u8()
	if err != nil {
		return nil, err
	}
	s.HasMaster = has != 0

	return s, nil
}
