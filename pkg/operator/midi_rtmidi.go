//go:build cgo

package operator

import "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

const midiAvailable = true

func openDriver() (midiDriver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	return drv, nil
}
