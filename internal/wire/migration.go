package wire

import "github.com/kvgrid/kvgrid/internal/kvdomain"

// MigrationOp selects which of the four master-to-master migration
// control calls a MigrationControlRequest carries.
type MigrationOp uint8

const (
	OpStartMigration MigrationOp = iota + 1
	OpCheckMigration
	OpCancelMigration
	OpCanCancel
)

// MigrationControlRequest is the body of a MsgMigrationControl frame: one
// of start-migration/check-migration/cancel/can-cancel, addressed at the
// partition and (for start/cancel) the counterpart group.
type MigrationControlRequest struct {
	Op          MigrationOp
	Partition   kvdomain.PartitionID
	SourceGroup kvdomain.GroupID
	TargetGroup kvdomain.GroupID
}

// MigrationControlResponse is the body of a MsgMigrationControlAck frame.
type MigrationControlResponse struct {
	Status kvdomain.RemoteMigrationStatus
	Detail string
	Cause  *kvdomain.Error
}

// EncodeMigrationControlRequest serializes a MigrationControlRequest.
func EncodeMigrationControlRequest(req *MigrationControlRequest) []byte {
	w := &writer{}
	w.u8(uint8(req.Op))
	w.i32(int32(req.Partition))
	w.i32(int32(req.SourceGroup))
	w.i32(int32(req.TargetGroup))
	return w.bytes()
}

// DecodeMigrationControlRequest parses a body produced by
// EncodeMigrationControlRequest.
func DecodeMigrationControlRequest(body []byte) (*MigrationControlRequest, error) {
	r := newReader(body)

	op, err := r.u8()
	if err != nil {
		return nil, err
	}
	partition, err := r.i32()
	if err != nil {
		return nil, err
	}
	source, err := r.i32()
	if err != nil {
		return nil, err
	}
	target, err := r.i32()
	if err != nil {
		return nil, err
	}

	return &MigrationControlRequest{
		Op:          MigrationOp(op),
		Partition:   kvdomain.PartitionID(partition),
		SourceGroup: kvdomain.GroupID(source),
		TargetGroup: kvdomain.GroupID(target),
	}, nil
}

// EncodeMigrationControlResponse serializes a MigrationControlResponse.
func EncodeMigrationControlResponse(resp *MigrationControlResponse) []byte {
	w := &writer{}
	w.i32(int32(resp.Status))
	w.stringField(resp.Detail)
	if resp.Cause != nil {
		w.u8(1)
		w.stringField(string(resp.Cause.Code))
		w.stringField(resp.Cause.Message)
	} else {
		w.u8(0)
	}
	return w.bytes()
}

// DecodeMigrationControlResponse parses a body produced by
// EncodeMigrationControlResponse.
func DecodeMigrationControlResponse(body []byte) (*MigrationControlResponse, error) {
	r := newReader(body)

	status, err := r.i32()
	if err != nil {
		return nil, err
	}
	detail, err := r.stringField()
	if err != nil {
		return nil, err
	}

	resp := &MigrationControlResponse{
		Status: kvdomain.RemoteMigrationStatus(status),
		Detail: detail,
	}

	hasCause, err := r.u8()
	if err != nil {
		return nil, err
	}
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

	return resp, nil
}
