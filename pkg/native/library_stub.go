//go:build !((linux || darwin) && cgo)

package native

import "errors"

func openLibrary(path string) (library, error) {
	return nil, errors.New("native modules need cgo on linux or darwin")
}
