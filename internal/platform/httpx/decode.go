package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit int64 = 64 * 1024

// DecodeJSON reads a single JSON object into dst. Unknown fields are rejected. An empty body
// leaves dst untouched when allowEmpty is set.
func DecodeJSON(r *http.Request, dst any, limit int64, allowEmpty bool) *Error {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		e := BadRequest("failed to read request body")
		return &e
	}
	if int64(len(body)) > limit {
		e := NewError("payload_too_large", fmt.Sprintf("request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
		return &e
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		e := BadRequest("request body is required")
		return &e
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var e Error
		switch {
		case errors.As(err, &syntaxErr):
			e = BadRequest(fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
		case errors.As(err, &typeErr):
			e = BadRequest(fmt.Sprintf("field %q has the wrong type", typeErr.Field))
		default:
			e = BadRequest("invalid JSON body: " + err.Error())
		}
		return &e
	}
	if dec.More() {
		e := BadRequest("request body must contain a single JSON object")
		return &e
	}
	return nil
}
