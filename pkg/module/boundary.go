package module

import (
	"rigz/pkg/abi"
	"rigz/pkg/value"
)

// Request builds the boundary request frame for inv.
func Request(name string, inv Invocation) abi.Request {
	return abi.Request{
		Convention: byte(inv.Convention),
		Name:       name,
		Invocation: inv.AsValue(),
	}
}

// TakeResponse decodes a foreign response buffer into a Status and
// releases the buffer exactly once. A buffer that fails to decode yields
// an Ok(Error) value rather than a failed call: the symbol was found, its
// result just could not be read.
func TakeResponse(out *abi.Owned) Status[value.Value] {
	resp, err := out.TakeResponse()
	if err != nil {
		return Ok(value.Errorf("malformed response: %v", err))
	}
	return FromResponse(resp)
}

func FromResponse(resp abi.Response) Status[value.Value] {
	switch resp.Status {
	case abi.StatusOK:
		return Ok(resp.Value)
	case abi.StatusNotFound:
		return NotFound[value.Value]()
	}
	return Err[value.Value](resp.Message)
}

// ToResponse is the inverse of FromResponse, used by in-process guests.
func ToResponse(s Status[value.Value]) abi.Response {
	switch s.Code() {
	case CodeOk:
		return abi.Response{Status: abi.StatusOK, Value: s.Value()}
	case CodeNotFound:
		return abi.Response{Status: abi.StatusNotFound}
	}
	return abi.Response{Status: abi.StatusError, Message: s.Message()}
}
