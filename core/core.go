// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package core is the register map engine. It consumes the flat Config
// layout that mirrors the kernel's struct regmap_config field for field,
// performs the register accesses, and reports failures as negative errno
// values the way kernel primitives do. Drivers normally configure maps
// through the regmap package, which projects its configuration into a
// core.Config; this package is the trusted side of that boundary.
package core

import (
	"syscall"
	"unsafe"
)

// Engine calls return 0 on success or a negative errno.
const (
	EINVAL = -int(syscall.EINVAL)
	EIO    = -int(syscall.EIO)
	ENOMEM = -int(syscall.ENOMEM)
	ENXIO  = -int(syscall.ENXIO)
)

// Register address and value endianness, mirroring enum regmap_endian.
const (
	EndianDefault = iota
	EndianBig
	EndianLittle
	EndianNative
)

// Register cache backends, mirroring enum regcache_type. Only CacheNone is
// compiled in; Init fails with EINVAL for the others.
const (
	CacheNone = iota
	CacheRbtree
	CacheCompressed
	CacheFlat
)

// Device names the owner of a register map in diagnostics.
type Device struct {
	Name string
}

type (
	// RegPredicate answers a per-register capability query, standing in
	// for the writeable_reg family of regmap_config callbacks. When set
	// it overrides the corresponding access table.
	RegPredicate func(dev *Device, reg uint32) bool

	// RegReadFn and RegWriteFn carry single register accesses for maps
	// initialized without a bus. They follow the engine convention of
	// returning 0 or a negative errno.
	RegReadFn  func(ctx interface{}, reg uint32, val *uint32) int
	RegWriteFn func(ctx interface{}, reg uint32, val uint32) int

	// RegUpdateBitsFn replaces the engine's read-modify-write sequence
	// for devices with hardware set/clear registers.
	RegUpdateBitsFn func(ctx interface{}, reg, mask, val uint32) int

	// BusReadFn and BusWriteFn are the raw formatted-buffer transfer
	// hooks of bus based maps. The MMIO and callback paths never invoke
	// them; they are carried so the Config layout stays complete.
	BusReadFn  func(ctx interface{}, reg, val []byte) int
	BusWriteFn func(ctx interface{}, data []byte) int

	// LockFn and its argument replace the engine's own map lock.
	LockFn func(arg interface{})
)

// Range is an inclusive span of register addresses.
type Range struct {
	Min uint32
	Max uint32
}

// In reports whether reg falls inside the span.
func (r *Range) In(reg uint32) bool { return reg >= r.Min && reg <= r.Max }

// AccessTable describes one capability as arrays of allowed and denied
// spans, pointer and count pairs laid out like struct regmap_access_table.
// A register in any no range is denied; otherwise it must appear in a yes
// range unless there are none.
type AccessTable struct {
	YesRanges  *Range
	NYesRanges uint32
	NoRanges   *Range
	NNoRanges  uint32
}

// RangeCfg describes one indirectly addressed register window, laid out
// like struct regmap_range_cfg. Virtual registers in [RangeMin, RangeMax]
// are reached by programming the page selector field and then accessing
// the window at WindowStart.
type RangeCfg struct {
	Name string

	RangeMin uint32
	RangeMax uint32

	SelectorReg   uint32
	SelectorMask  uint32
	SelectorShift int32

	WindowStart uint32
	WindowLen   uint32
}

// RegDefault is one register's power-on value, laid out like struct
// reg_default.
type RegDefault struct {
	Reg uint32
	Def uint32
}

// Config mirrors the kernel's struct regmap_config. Pointer fields carry
// caller owned arrays described by their companion counts; Init copies
// whatever it keeps, so the arrays need only stay alive for the duration
// of the call.
type Config struct {
	Name string

	RegBits      int
	RegStride    int
	RegDownshift int
	RegBase      uint32
	PadBits      int
	ValBits      int

	WriteableReg      RegPredicate
	ReadableReg       RegPredicate
	VolatileReg       RegPredicate
	PreciousReg       RegPredicate
	WriteableNoincReg RegPredicate
	ReadableNoincReg  RegPredicate

	DisableLocking bool
	Lock           LockFn
	Unlock         LockFn
	LockArg        interface{}

	RegRead       RegReadFn
	RegWrite      RegWriteFn
	RegUpdateBits RegUpdateBitsFn

	Read        BusReadFn
	Write       BusWriteFn
	MaxRawRead  uint
	MaxRawWrite uint

	FastIO bool
	IOPort bool

	MaxRegister uint32

	WrTable       *AccessTable
	RdTable       *AccessTable
	VolatileTable *AccessTable
	PreciousTable *AccessTable
	WrNoincTable  *AccessTable
	RdNoincTable  *AccessTable

	RegDefaults    *RegDefault
	NumRegDefaults uint32

	CacheType uint32

	RegDefaultsRaw    unsafe.Pointer
	NumRegDefaultsRaw uint32

	ReadFlagMask  uint64
	WriteFlagMask uint64
	ZeroFlagMask  bool

	UseSingleRead  bool
	UseSingleWrite bool
	UseRelaxedMMIO bool
	CanMultiWrite  bool

	RegFormatEndian uint32
	ValFormatEndian uint32

	Ranges    *RangeCfg
	NumRanges uint32

	UseHwlock      bool
	UseRawSpinlock bool
	HwlockID       uint32
	HwlockMode     uint32

	CanSleep bool
}
