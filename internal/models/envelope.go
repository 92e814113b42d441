package models

import brokererrors "ican-broker/internal/common/errors"

// Envelope is the single response shape returned to every caller. Exactly
// one of Result/Error is populated.
type Envelope struct {
	Status bool        `json:"status"`
	Result interface{} `json:"result"`
	Error  *ErrorBody  `json:"error"`
}

// ErrorBody carries the outward error. ClientInfo is present only on
// contract-approval failures.
type ErrorBody struct {
	Message    string      `json:"message"`
	ClientInfo interface{} `json:"client_info,omitempty"`
}

// OK wraps a successful result.
func OK(result interface{}) Envelope {
	return Envelope{Status: true, Result: result, Error: nil}
}

// Fail wraps a failure message.
func Fail(message string) Envelope {
	return Envelope{Status: false, Result: nil, Error: &ErrorBody{Message: message}}
}

// Project maps an internal (result, err) pair into the outward envelope.
func Project(result interface{}, err error) Envelope {
	if err != nil {
		be := brokererrors.From(err)
		body := &ErrorBody{Message: be.Message}
		if be.ClientInfo != nil {
			body.ClientInfo = be.ClientInfo
		}
		return Envelope{Status: false, Result: nil, Error: body}
	}
	return OK(result)
}
