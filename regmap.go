// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package regmap lets a driver declare a device's register layout once
// and then read and write registers without hand rolling bus access,
// access gating, or paged window arithmetic. A driver fills in a Config,
// opens it over a transport such as an mmio.Region, and works through
// the returned Regmap handle. The register engine lives in the core
// package; this package shapes a Config into the flat core.Config layout
// the engine expects and manages the handle's lifetime.
package regmap

import (
	"github.com/platinasystems/fdt"

	"github.com/platinasystems/regmap/core"
)

// Endian selects how register addresses or values are laid out on the
// bus.
type Endian uint32

const (
	EndianDefault Endian = iota // whatever the bus implementation picks
	EndianBig
	EndianLittle
	EndianNative // host byte order
)

// CacheType selects the engine's register cache strategy.
type CacheType uint32

const (
	CacheNone CacheType = iota
	CacheRbtree
	CacheCompressed
	CacheFlat
)

// Range is an inclusive span of register addresses.
type Range struct {
	Min uint32
	Max uint32
}

// RegDefault is one register's power-on value.
type RegDefault struct {
	Reg uint32
	Def uint32
}

// AccessTable gates one register capability with allow and deny spans.
// The engine owns the precedence rule between the two lists; this layer
// hands both through unchanged. The slices are borrowed, so they must
// stay alive until the Config has been opened.
type AccessTable struct {
	YesRanges []Range
	NoRanges  []Range
}

// RangeConfig describes one paged register window: virtual registers in
// [RangeMin, RangeMax] are reached by programming the page selector and
// then accessing the data window at WindowStart. RangeMin must not
// exceed RangeMax and WindowLen must be positive. Keeping the windows of
// different ranges apart is the caller's problem.
type RangeConfig struct {
	Name string

	RangeMin uint32
	RangeMax uint32

	SelectorReg   uint32
	SelectorMask  uint32
	SelectorShift int32

	WindowStart uint32
	WindowLen   uint32
}

// Config is one register map's complete policy. New sets the only two
// mandatory fields; every other field's zero value reads as unset on the
// engine side. A Config is filled in once and not touched again between
// the start of Open and its return; afterwards it may be reused or
// thrown away, since the engine keeps no references into it.
type Config struct {
	// Name labels the map in logs. Empty means the device name.
	Name string

	// Register address geometry: address and value widths in bits, the
	// address stride (0 is taken by the engine as 1), a right shift
	// applied to addresses, a constant offset added to them, and the
	// padding bits between address and value on the wire.
	RegBits      int
	ValBits      int
	RegStride    int
	RegDownshift int
	RegBase      uint32
	PadBits      int

	// Caps on raw transfer sizes, in bytes. Zero means the bus default.
	MaxRawRead  uint
	MaxRawWrite uint

	// FastIO selects the engine's spinlock over its mutex. IOPort puts
	// the window in port I/O space instead of memory space.
	FastIO bool
	IOPort bool

	// MaxRegister is the highest valid register address, 0 for no
	// limit.
	MaxRegister uint32

	// DisableLocking asks the engine not to serialize accesses. It is
	// not yet projected; maps opened through this package always run
	// with engine locking on.
	DisableLocking bool

	// Capability tables. A nil table leaves its capability ungated.
	WrTable       *AccessTable
	RdTable       *AccessTable
	VolatileTable *AccessTable
	PreciousTable *AccessTable
	WrNoincTable  *AccessTable
	RdNoincTable  *AccessTable

	// RegDefaults seeds the register cache with power-on values.
	RegDefaults []RegDefault

	// CacheType selects the cache strategy for non volatile registers.
	CacheType CacheType

	// Flag masks folded into the top bits of every register address on
	// read or write. ZeroFlagMask makes an all zero mask meaningful
	// rather than unset.
	ReadFlagMask  uint64
	WriteFlagMask uint64
	ZeroFlagMask  bool

	// Transfer shape restrictions and capabilities.
	UseSingleRead  bool
	UseSingleWrite bool
	UseRelaxedMMIO bool
	CanMultiWrite  bool

	// Endianness of formatted register addresses and of values.
	RegFormatEndian Endian
	ValFormatEndian Endian

	// Ranges lists the paged register windows.
	Ranges []RangeConfig

	// CanSleep marks maps whose accesses may block.
	CanSleep bool
}

// New starts a Config with the mandatory register address and value
// widths. The widths are not validated here; the engine rejects geometry
// it cannot format, and widths that merely mismatch the device show up
// as wrong values read, not as errors.
func New(regBits, valBits int) *Config {
	return &Config{RegBits: regBits, ValBits: valBits}
}

// Device identifies the driver opening a map. It only feeds diagnostics.
type Device struct {
	d core.Device
}

// NewDevice returns a Device with the given diagnostic name.
func NewDevice(name string) *Device {
	return &Device{core.Device{Name: name}}
}

// DeviceFromNode names a Device after a device tree node.
func DeviceFromNode(n *fdt.Node) *Device { return NewDevice(n.Name) }

// Name returns the device's diagnostic name.
func (d *Device) Name() string { return d.d.Name }
