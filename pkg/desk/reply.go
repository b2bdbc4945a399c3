// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"encoding/json"
	"errors"
)

// ReasonInternal is used for errors outside the parse/controller taxonomy
const ReasonInternal = "internal error"

// Reply is the outcome of one request: fields on success, or a
// machine-stable reason with a human-readable detail on failure.
type Reply struct {
	Fields map[string]interface{}
	Reason string
	Detail string
}

// OKReply creates a success reply
func OKReply(fields map[string]interface{}) Reply {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Reply{Fields: fields}
}

// ErrorReply renders err as a failure reply
func ErrorReply(err error) Reply {
	var pe *ParseError
	if errors.As(err, &pe) {
		return Reply{Reason: pe.Kind.Reason(), Detail: pe.Detail}
	}
	var ce *ControllerError
	if errors.As(err, &ce) {
		detail := ce.Detail
		if ce.Err != nil {
			if detail != "" {
				detail += ": "
			}
			detail += ce.Err.Error()
		}
		return Reply{Reason: ce.Kind.Reason(), Detail: detail}
	}
	return Reply{Reason: ReasonInternal, Detail: err.Error()}
}

// OK reports whether the reply is a success
func (r Reply) OK() bool {
	return r.Reason == ""
}

// Map renders the reply as its wire mapping
func (r Reply) Map() map[string]interface{} {
	if r.OK() {
		out := make(map[string]interface{}, len(r.Fields))
		for k, v := range r.Fields {
			out[k] = v
		}
		return out
	}
	out := map[string]interface{}{"error": r.Reason}
	if r.Detail != "" {
		out["detail"] = r.Detail
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (r Reply) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
