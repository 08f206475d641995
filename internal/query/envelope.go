// Package query is the HTTP/JSON facade: a flat set of GET endpoints,
// each returning the same {status, message, data} envelope regardless of
// outcome.
package query

// Status is the envelope's outer result code.
type Status string

const (
	StatusOK           Status = "OK"
	StatusBadRequest   Status = "BAD_REQUEST"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusNotFound     Status = "NOT_FOUND"
)

// Envelope is the canonical response shape of every endpoint.
type Envelope struct {
	Status  Status      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(data interface{}) Envelope {
	return Envelope{Status: StatusOK, Message: "ok", Data: data}
}

func badRequest(msg string) Envelope {
	return Envelope{Status: StatusBadRequest, Message: msg}
}

func unauthorized(msg string) Envelope {
	return Envelope{Status: StatusUnauthorized, Message: msg}
}

func notFound(msg string) Envelope {
	return Envelope{Status: StatusNotFound, Message: msg}
}
