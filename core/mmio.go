// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package core

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// mmioBus performs register accesses against a memory mapped window. The
// register offset handed to read and write is a byte offset from base;
// the map's stride keeps accesses aligned to the value width.
type mmioBus struct {
	base     unsafe.Pointer
	valBytes int
	load     func(unsafe.Pointer) uint32
	store    func(unsafe.Pointer, uint32)
}

// newMMIOBus validates the config the way regmap-mmio does: pad bits and
// non native register formats are not expressible on a memory window, the
// stride must cover the value width, and only 8, 16 and 32 bit values are
// handled.
func newMMIOBus(base unsafe.Pointer, cfg *Config) (*mmioBus, int) {
	if cfg.PadBits != 0 {
		return nil, EINVAL
	}
	switch cfg.RegFormatEndian {
	case EndianDefault, EndianNative:
	default:
		return nil, EINVAL
	}

	b := &mmioBus{base: base}
	switch cfg.ValBits {
	case 8:
		b.valBytes = 1
	case 16:
		b.valBytes = 2
	case 32:
		b.valBytes = 4
	default:
		return nil, EINVAL
	}

	stride := cfg.RegStride
	if stride == 0 {
		stride = 1
	}
	if stride < b.valBytes {
		return nil, EINVAL
	}

	big := cfg.ValFormatEndian == EndianBig
	b.load, b.store = mmioAccessors(cfg.ValBits, big, cfg.UseRelaxedMMIO)
	return b, 0
}

func (b *mmioBus) read(reg uint32, val *uint32) int {
	*val = b.load(unsafe.Pointer(uintptr(b.base) + uintptr(reg)))
	return 0
}

func (b *mmioBus) write(reg uint32, val uint32) int {
	b.store(unsafe.Pointer(uintptr(b.base)+uintptr(reg)), val)
	return 0
}

// mmioAccessors picks load and store for the value width. Ordered 32 bit
// accesses go through sync/atomic so they are neither torn nor reordered;
// relaxed accesses and the narrow widths are plain dereferences, matching
// readl_relaxed and friends. Big endian values are byte swapped on a
// little endian host.
func mmioAccessors(valBits int, big, relaxed bool) (load func(unsafe.Pointer) uint32, store func(unsafe.Pointer, uint32)) {
	switch valBits {
	case 8:
		load = func(p unsafe.Pointer) uint32 { return uint32(*(*uint8)(p)) }
		store = func(p unsafe.Pointer, v uint32) { *(*uint8)(p) = uint8(v) }
	case 16:
		load = func(p unsafe.Pointer) uint32 { return uint32(*(*uint16)(p)) }
		store = func(p unsafe.Pointer, v uint32) { *(*uint16)(p) = uint16(v) }
		if big {
			ld, st := load, store
			load = func(p unsafe.Pointer) uint32 {
				return uint32(bits.ReverseBytes16(uint16(ld(p))))
			}
			store = func(p unsafe.Pointer, v uint32) {
				st(p, uint32(bits.ReverseBytes16(uint16(v))))
			}
		}
	case 32:
		if relaxed {
			load = func(p unsafe.Pointer) uint32 { return *(*uint32)(p) }
			store = func(p unsafe.Pointer, v uint32) { *(*uint32)(p) = v }
		} else {
			load = func(p unsafe.Pointer) uint32 {
				return atomic.LoadUint32((*uint32)(p))
			}
			store = func(p unsafe.Pointer, v uint32) {
				atomic.StoreUint32((*uint32)(p), v)
			}
		}
		if big {
			ld, st := load, store
			load = func(p unsafe.Pointer) uint32 {
				return bits.ReverseBytes32(ld(p))
			}
			store = func(p unsafe.Pointer, v uint32) {
				st(p, bits.ReverseBytes32(v))
			}
		}
	}
	return
}
