// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"
)

// MIMECBOR is the content type for CBOR bodies
const MIMECBOR = "application/cbor"

// maxBodySize bounds request bodies. Requests are a few dozen bytes.
const maxBodySize = 64 << 10

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// decodeBody decodes a JSON or CBOR request body into untyped values.
// JSON numbers are kept as json.Number so integers are never rounded.
func decodeBody(r *http.Request) (interface{}, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodySize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty body")
	}

	var v interface{}
	if isCBOR(r.Header.Get("Content-Type")) {
		if err := cborDecMode.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid CBOR: %w", err)
		}
		return v, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data")
	}
	return v, nil
}

func isCBOR(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == MIMECBOR
}

func wantsCBOR(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		if isCBOR(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

// render writes body as CBOR when the client asked for it, JSON otherwise
func render(c *gin.Context, code int, body map[string]interface{}) {
	if wantsCBOR(c.GetHeader("Accept")) {
		data, err := cbor.Marshal(body)
		if err == nil {
			c.Data(code, MIMECBOR, data)
			return
		}
		_ = c.Error(err)
	}
	c.JSON(code, body)
}
