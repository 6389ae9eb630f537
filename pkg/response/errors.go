package response

import "errors"

var (
	ErrNilResponse = errors.New("nil http response")
	ErrReadBody    = errors.New("failed to read response body")
	ErrDecodeJSON  = errors.New("failed to decode response body as json")
)
