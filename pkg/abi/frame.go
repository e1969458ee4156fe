package abi

import (
	"fmt"

	"rigz/pkg/value"
)

// Version is the first byte of every request frame.
const Version byte = 1

// Status is the first byte of every response frame.
type Status byte

const (
	StatusOK       Status = 0
	StatusNotFound Status = 1
	StatusError    Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

// Request is what the host sends across the boundary:
//
//	u8 version | u8 convention | u32(len) name | value invocation
//
// Invocation is a List for positional conventions and an Object for the
// struct conventions.
type Request struct {
	Convention byte
	Name       string
	Invocation value.Value
}

// Response is what comes back:
//
//	u8 status | value          (ok)
//	u8 status                  (not_found)
//	u8 status | u32(len) msg   (error)
type Response struct {
	Status  Status
	Value   value.Value
	Message string
}

func AppendRequest(dst []byte, req Request) []byte {
	dst = append(dst, Version, req.Convention)
	dst = appendString(dst, req.Name)
	return AppendValue(dst, req.Invocation)
}

func DecodeRequest(b []byte) (Request, error) {
	d := NewDecoder(b)
	version, err := d.Byte()
	if err != nil {
		return Request{}, err
	}
	if version != Version {
		return Request{}, fmt.Errorf("abi: unsupported request version %d", version)
	}
	conv, err := d.Byte()
	if err != nil {
		return Request{}, err
	}
	name, err := d.RawString()
	if err != nil {
		return Request{}, err
	}
	inv, err := d.Value()
	if err != nil {
		return Request{}, err
	}
	return Request{Convention: conv, Name: name, Invocation: inv}, nil
}

func AppendResponse(dst []byte, resp Response) []byte {
	dst = append(dst, byte(resp.Status))
	switch resp.Status {
	case StatusOK:
		dst = AppendValue(dst, resp.Value)
	case StatusError:
		dst = appendString(dst, resp.Message)
	}
	return dst
}

// DecodeResponse parses a response frame. The result shares no memory
// with b.
func DecodeResponse(b []byte) (Response, error) {
	d := NewDecoder(b)
	status, err := d.Byte()
	if err != nil {
		return Response{}, err
	}
	resp := Response{Status: Status(status)}
	switch resp.Status {
	case StatusOK:
		resp.Value, err = d.Value()
	case StatusNotFound:
	case StatusError:
		resp.Message, err = d.RawString()
	default:
		return Response{}, fmt.Errorf("abi: unknown response status %d", status)
	}
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
