// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regmap

import (
	"io"
	"runtime"

	"github.com/platinasystems/regmap/core"
	"github.com/platinasystems/regmap/mmio"
)

// Regmap is an open register map. It owns one engine connection and the
// transport backing it. Reads and writes may run concurrently under the
// engine's lock, but none may overlap Close, and the handle must not be
// used after Close returns.
type Regmap struct {
	m   *core.Map
	bus io.Closer
}

// Open projects cfg into the engine layout and opens a map over the
// mapped window. The region is consumed either way: on failure it is
// closed before the error comes back, so the caller must not touch it
// again.
func Open(dev *Device, r *mmio.Region, cfg *Config) (*Regmap, error) {
	if r == nil {
		return nil, EINVAL
	}
	if cfg == nil {
		r.Close()
		return nil, EINVAL
	}
	cc, bk, err := cfg.toCore()
	if err != nil {
		r.Close()
		return nil, err
	}
	var cd *core.Device
	if dev != nil {
		cd = &dev.d
	}
	m, code := core.InitMMIO(cd, r.Base(), &cc)
	// cc points into cfg's slices and into bk until the engine has
	// copied them out.
	runtime.KeepAlive(cfg)
	runtime.KeepAlive(bk)
	if code != 0 {
		r.Close()
		return nil, Errno(code)
	}
	return &Regmap{m: m, bus: r}, nil
}

// FromMap adopts an already initialized engine map plus the transport it
// depends on; bus may be nil when there is nothing to release. Ownership
// of both passes to the returned handle.
func FromMap(m *core.Map, bus io.Closer) *Regmap {
	return &Regmap{m: m, bus: bus}
}

// Read returns the value of one register. A non nil error is always an
// Errno carrying the engine's negative code. Reading can have side
// effects on clear-on-read registers, so callers should treat Read like
// a write when reasoning about sharing.
func (r *Regmap) Read(reg uint32) (uint32, error) {
	var val uint32
	if code := r.m.Read(reg, &val); code != 0 {
		return 0, Errno(code)
	}
	return val, nil
}

// Write sets one register, with the same error convention as Read.
func (r *Regmap) Write(reg uint32, val uint32) error {
	return errnoErr(r.m.Write(reg, val))
}

// MaxRegister returns the highest valid register address, 0 when the map
// has no limit.
func (r *Regmap) MaxRegister() uint32 { return r.m.MaxRegister() }

// RegStride returns the register address stride, at least 1.
func (r *Regmap) RegStride() uint32 { return r.m.RegStride() }

// Readable reports whether reg may be read through this map.
func (r *Regmap) Readable(reg uint32) bool { return r.m.Readable(reg) }

// Writeable reports whether reg may be written through this map.
func (r *Regmap) Writeable(reg uint32) bool { return r.m.Writeable(reg) }

func (r *Regmap) String() string { return r.m.String() }

// Close releases the engine connection first and the transport second;
// the engine may touch the mapped window right up to its teardown, so
// the order is load bearing. Only the first Close does anything, repeats
// return nil.
func (r *Regmap) Close() error {
	if r.m == nil {
		return nil
	}
	r.m.Exit()
	r.m = nil
	bus := r.bus
	r.bus = nil
	if bus == nil {
		return nil
	}
	return bus.Close()
}
