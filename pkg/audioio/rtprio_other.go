//go:build !linux

package audioio

import "errors"

func setRealtimePriority(prio int) error {
	return errors.New("realtime scheduling is only supported on Linux")
}
