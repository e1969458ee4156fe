package abi

import "sync"

// Owned is a buffer allocated by the dispatch side and handed to the
// host. The host decodes it and then gives it back exactly once through
// Release; the release function is never called twice, even if Release
// is.
type Owned struct {
	data    []byte
	once    sync.Once
	release func()
}

// NewOwned wraps data with the function that returns it to its allocator.
// release may be nil for buffers the Go heap owns.
func NewOwned(data []byte, release func()) *Owned {
	return &Owned{data: data, release: release}
}

// Bytes returns the buffer, or nil once released.
func (o *Owned) Bytes() []byte {
	return o.data
}

func (o *Owned) Release() {
	o.once.Do(func() {
		o.data = nil
		if o.release != nil {
			o.release()
		}
	})
}

// TakeResponse decodes the buffer as a response frame and releases it,
// whether decoding succeeded or not.
func (o *Owned) TakeResponse() (Response, error) {
	defer o.Release()
	return DecodeResponse(o.data)
}
