package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("building CBOR encoding mode: %s", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("building CBOR decoding mode: %s", err))
	}
}

// CodecError is returned when a message cannot be encoded or decoded.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func EncodeRequest(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, &CodecError{Op: "encoding request", Err: err}
	}
	b, err := encMode.Marshal(req)
	if err != nil {
		return nil, &CodecError{Op: "encoding request", Err: err}
	}
	return b, nil
}

func DecodeRequest(b []byte) (Request, error) {
	var req Request
	if err := decMode.Unmarshal(b, &req); err != nil {
		return Request{}, &CodecError{Op: "decoding request", Err: err}
	}
	if err := req.Validate(); err != nil {
		return Request{}, &CodecError{Op: "decoding request", Err: err}
	}
	return req, nil
}

func EncodeResult(res Result) ([]byte, error) {
	if err := res.Validate(); err != nil {
		return nil, &CodecError{Op: "encoding result", Err: err}
	}
	b, err := encMode.Marshal(res)
	if err != nil {
		return nil, &CodecError{Op: "encoding result", Err: err}
	}
	return b, nil
}

func DecodeResult(b []byte) (Result, error) {
	var res Result
	if err := decMode.Unmarshal(b, &res); err != nil {
		return Result{}, &CodecError{Op: "decoding result", Err: err}
	}
	if err := res.Validate(); err != nil {
		return Result{}, &CodecError{Op: "decoding result", Err: err}
	}
	return res, nil
}
