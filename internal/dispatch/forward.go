package dispatch

import "github.com/kvgrid/kvgrid/internal/kvdomain"

// PrepareForward mutates req in place for a single forwarding hop from
// fromNode to dest: the TTL is decremented (and must fail TTL_EXCEEDED)
// before the forwarding chain is touched, so a request that is about to
// die of TTL never gets an extra hop recorded against it. A within-group
// forward appends fromNode's
// index to the chain and rejects a loop or a chain longer than
// destGroupSize (the destination group's member count); a cross-group
// forward resets the chain, since a chain is only ever interpreted
// relative to the group currently holding the request.
func PrepareForward(req *kvdomain.Request, fromNode kvdomain.NodeID, dest Destination, destGroupSize int) error {
	if err := req.DecrementTTL(); err != nil {
		return err
	}
	sameGroup := fromNode.Group == dest.Group
	return req.UpdateForwardingChain(fromNode.Index, sameGroup, destGroupSize)
}
