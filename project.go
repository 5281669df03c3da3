// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regmap

import (
	"math"
	"unsafe"

	"github.com/platinasystems/regmap/core"
)

// coreBacking owns the projected storage a core.Config points into: the
// six access table headers and the range config array. The table headers
// in turn point into the Config's own slices, so both the backing and
// the Config must stay reachable until the engine call consuming the
// core.Config returns; the engine copies whatever it keeps.
type coreBacking struct {
	tables [6]core.AccessTable
	ranges []core.RangeCfg
}

// toCore projects a Config into the engine's flat layout. All unsafe
// pointer forming happens here and nowhere else; every engine field not
// assigned below is deliberately left at its zero value so the callback,
// locking, hwlock and raw cache fields always read as unset, whatever
// the Config says.
func (c *Config) toCore() (cc core.Config, bk *coreBacking, err error) {
	bk = new(coreBacking)

	var tbl [6]*core.AccessTable
	for i, t := range []*AccessTable{
		c.WrTable, c.RdTable, c.VolatileTable,
		c.PreciousTable, c.WrNoincTable, c.RdNoincTable,
	} {
		if tbl[i], err = bk.table(i, t); err != nil {
			return core.Config{}, nil, err
		}
	}

	dp, dn, err := defaultsPtr(c.RegDefaults)
	if err != nil {
		return core.Config{}, nil, err
	}

	if n := len(c.Ranges); n != 0 {
		if uint64(n) > math.MaxUint32 {
			return core.Config{}, nil, EINVAL
		}
		bk.ranges = make([]core.RangeCfg, n)
		for i := range c.Ranges {
			r := &c.Ranges[i]
			bk.ranges[i] = core.RangeCfg{
				Name:          r.Name,
				RangeMin:      r.RangeMin,
				RangeMax:      r.RangeMax,
				SelectorReg:   r.SelectorReg,
				SelectorMask:  r.SelectorMask,
				SelectorShift: r.SelectorShift,
				WindowStart:   r.WindowStart,
				WindowLen:     r.WindowLen,
			}
		}
	}

	cc = core.Config{
		Name: c.Name,

		RegBits:      c.RegBits,
		RegStride:    c.RegStride,
		RegDownshift: c.RegDownshift,
		RegBase:      c.RegBase,
		PadBits:      c.PadBits,
		ValBits:      c.ValBits,

		MaxRawRead:  c.MaxRawRead,
		MaxRawWrite: c.MaxRawWrite,

		FastIO: c.FastIO,
		IOPort: c.IOPort,

		MaxRegister: c.MaxRegister,

		WrTable:       tbl[0],
		RdTable:       tbl[1],
		VolatileTable: tbl[2],
		PreciousTable: tbl[3],
		WrNoincTable:  tbl[4],
		RdNoincTable:  tbl[5],

		RegDefaults:    dp,
		NumRegDefaults: dn,

		CacheType: uint32(c.CacheType),

		ReadFlagMask:  c.ReadFlagMask,
		WriteFlagMask: c.WriteFlagMask,
		ZeroFlagMask:  c.ZeroFlagMask,

		UseSingleRead:  c.UseSingleRead,
		UseSingleWrite: c.UseSingleWrite,
		UseRelaxedMMIO: c.UseRelaxedMMIO,
		CanMultiWrite:  c.CanMultiWrite,

		RegFormatEndian: uint32(c.RegFormatEndian),
		ValFormatEndian: uint32(c.ValFormatEndian),

		CanSleep: c.CanSleep,
	}
	if len(bk.ranges) != 0 {
		cc.Ranges = &bk.ranges[0]
		cc.NumRanges = uint32(len(bk.ranges))
	}
	return cc, bk, nil
}

// table projects one optional AccessTable into slot i of the backing. A
// nil table projects to a nil pointer, not an empty header.
func (bk *coreBacking) table(i int, t *AccessTable) (*core.AccessTable, error) {
	if t == nil {
		return nil, nil
	}
	yp, yn, err := rangesPtr(t.YesRanges)
	if err != nil {
		return nil, err
	}
	np, nn, err := rangesPtr(t.NoRanges)
	if err != nil {
		return nil, err
	}
	bk.tables[i] = core.AccessTable{
		YesRanges:  yp,
		NYesRanges: yn,
		NoRanges:   np,
		NNoRanges:  nn,
	}
	return &bk.tables[i], nil
}

// rangesPtr hands a range slice to the engine as a pointer to its first
// element plus a count. Range and core.Range have identical layout. A
// count that cannot be expressed in the engine's 32 bit field fails the
// projection.
func rangesPtr(v []Range) (*core.Range, uint32, error) {
	n := len(v)
	if uint64(n) > math.MaxUint32 {
		return nil, 0, EINVAL
	}
	if n == 0 {
		return nil, 0, nil
	}
	return (*core.Range)(unsafe.Pointer(&v[0])), uint32(n), nil
}

// defaultsPtr does the same for the register default pairs.
func defaultsPtr(v []RegDefault) (*core.RegDefault, uint32, error) {
	n := len(v)
	if uint64(n) > math.MaxUint32 {
		return nil, 0, EINVAL
	}
	if n == 0 {
		return nil, 0, nil
	}
	return (*core.RegDefault)(unsafe.Pointer(&v[0])), uint32(n), nil
}
