// Package types holds the JSON envelopes shared by every HTTP response.
package types

// SuccessEnvelope is the body of every 2xx response. Meta is only present on
// list endpoints.
type SuccessEnvelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta describes one page of a cursor-paginated list.
type Meta struct {
	Limit      int    `json:"limit,omitempty"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// APIError is the public face of a failure. RequestID lets callers quote the
// id that appears in server logs.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
