//go:build !cgo

package operator

import "fmt"

const midiAvailable = false

func openDriver() (midiDriver, error) {
	return nil, fmt.Errorf("midi requires a cgo build")
}
