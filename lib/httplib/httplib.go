/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httplib implements common utility functions for writing
// classic HTTP handlers.
package httplib

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
)

// MaxBodyBytes bounds request bodies accepted by ReadJSON. Registry
// payloads (seeds, templates, tab filters) are small; anything larger is a
// client error.
const MaxBodyBytes = 1 << 20

// HandlerFunc specifies an HTTP handler function that returns the response
// payload or an error. A nil payload with a nil error produces
// 204 No Content.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error)

// MakeHandler returns a new httprouter.Handle func from a handler func.
func MakeHandler(fn HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		out, err := fn(w, r, p)
		if err != nil {
			ReplyError(r.Context(), w, err)
			return
		}
		if out == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		ReplyJSON(w, http.StatusOK, out)
	}
}

// ReadJSON reads the HTTP request body and unmarshals it into val.
func ReadJSON(r *http.Request, val interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		return trace.Wrap(err)
	}
	if err := json.Unmarshal(data, val); err != nil {
		return trace.BadParameter("request body is not valid JSON: %v", err)
	}
	return nil
}

// ErrorResponse is the JSON body of error replies.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ReplyError writes an error response with the status code derived from
// the error classification (400 bad parameter, 404 not found, 409 already
// exists, 500 otherwise).
func ReplyError(ctx context.Context, w http.ResponseWriter, err error) {
	code := trace.ErrorToCode(err)
	if code == http.StatusInternalServerError {
		// Clients only ever see the user message; the trace goes to the
		// log.
		slog.ErrorContext(ctx, "handler failed", "error", err)
	}
	ReplyJSON(w, code, ErrorResponse{Code: code, Message: trace.UserMessage(err)})
}

// ReplyJSON writes a JSON reply with the given status code.
func ReplyJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}
