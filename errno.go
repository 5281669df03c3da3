// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regmap

import (
	"fmt"
	"syscall"
)

// Errno is the engine's error code carried through unmodified: always
// negative, one of the usual kernel errno values.
type Errno int

const (
	EINVAL = Errno(-int(syscall.EINVAL))
	EIO    = Errno(-int(syscall.EIO))
	ENOMEM = Errno(-int(syscall.ENOMEM))
	ENXIO  = Errno(-int(syscall.ENXIO))
	EBUSY  = Errno(-int(syscall.EBUSY))
	ERANGE = Errno(-int(syscall.ERANGE))
	ENODEV = Errno(-int(syscall.ENODEV))
	EFAULT = Errno(-int(syscall.EFAULT))
)

func (e Errno) Error() string {
	return fmt.Sprintf("errno %d: %s", int(e), syscall.Errno(-e).Error())
}

// errnoErr maps an engine return code to an error, 0 to nil.
func errnoErr(code int) error {
	if code == 0 {
		return nil
	}
	return Errno(code)
}
