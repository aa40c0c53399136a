// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package json

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

var errNoFunction = errors.New("method does not name a function")

// NewCodec returns a JSON-RPC 2.0 codec that accepts lowercased method names,
// so clients call "oracle.getPrice" for the exported GetPrice handler.
func NewCodec() Codec {
	return Codec{Codec: json2.NewCodec()}
}

type Codec struct {
	rpc.Codec
}

func (c Codec) NewRequest(r *http.Request) rpc.CodecRequest {
	return codecRequest{CodecRequest: c.Codec.NewRequest(r)}
}

type codecRequest struct {
	rpc.CodecRequest
}

// Method returns the called method with the function name's first letter
// uppercased to match Go's exported method names.
func (c codecRequest) Method() (string, error) {
	method, err := c.CodecRequest.Method()
	if err != nil {
		return "", err
	}
	dotIndex := strings.LastIndex(method, ".")
	service := method[:dotIndex+1]
	function := method[dotIndex+1:]
	if len(function) == 0 {
		return "", errNoFunction
	}
	return service + string(unicode.ToUpper(rune(function[0]))) + function[1:], nil
}
