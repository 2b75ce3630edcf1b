package kvdomain

// Response is either an operation result or a failure, plus whatever
// topology/group-state delta the recipient should absorb.
type Response struct {
	Result []byte
	Token  *CommitToken

	Err *Error

	Delta *Delta
}

// OK reports whether the response carries a result rather than a failure.
func (r *Response) OK() bool { return r.Err == nil }

// NewResultResponse builds a successful Response.
func NewResultResponse(result []byte, token *CommitToken) *Response {
	return &Response{Result: result, Token: token}
}

// NewErrorResponse builds a failing Response, optionally carrying a delta
// for the caller to absorb before retrying.
func NewErrorResponse(err *Error, delta *Delta) *Response {
	return &Response{Err: err, Delta: delta}
}
