// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regmap

import (
	"strings"
	"testing"

	"github.com/platinasystems/fdt"

	"github.com/platinasystems/regmap/core"
	"github.com/platinasystems/regmap/mmio"
)

func anonRegion(t *testing.T, size uint) *mmio.Region {
	t.Helper()
	r, err := mmio.MapAnon("soft-regs", size)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestOpenReadWrite(t *testing.T) {
	r := anonRegion(t, 4096)
	cfg := New(32, 32)
	cfg.RegStride = 4
	cfg.MaxRegister = 0xffc
	rm, err := Open(NewDevice("anon0"), r, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer rm.Close()

	if err = rm.Write(0x10, 0xfeedface); err != nil {
		t.Fatalf("Write: %v", err)
	}
	val, err := rm.Read(0x10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, want := val, uint32(0xfeedface); got != want {
		t.Errorf("Read: got %#x want %#x", got, want)
	}

	// a register preloaded by the device side
	*(*uint32)(r.Base()) = 0x1234
	if val, err = rm.Read(0); err != nil || val != 0x1234 {
		t.Errorf("preloaded Read: got %#x/%v want 0x1234/nil", val, err)
	}

	if _, err = rm.Read(0x2); err != EINVAL {
		t.Errorf("off-stride Read: got %v want %v", err, EINVAL)
	}
	// read-modify-write through the two scalar entry points
	if val, err = rm.Read(0x10); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err = rm.Write(0x10, val&^0xff|0x42); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if val, _ = rm.Read(0x10); val != 0xfeedfa42 {
		t.Errorf("masked rewrite: got %#x want 0xfeedfa42", val)
	}

	if got, want := rm.MaxRegister(), uint32(0xffc); got != want {
		t.Errorf("MaxRegister: got %#x want %#x", got, want)
	}
	if got, want := rm.RegStride(), uint32(4); got != want {
		t.Errorf("RegStride: got %d want %d", got, want)
	}
	if !strings.Contains(rm.String(), "anon0") {
		t.Errorf("String: %q lacks device name", rm.String())
	}
}

func TestOpenGating(t *testing.T) {
	r := anonRegion(t, 4096)
	cfg := New(32, 32)
	cfg.RegStride = 4
	cfg.RdTable = &AccessTable{NoRanges: []Range{{Min: 0x8, Max: 0x8}}}
	rm, err := Open(nil, r, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer rm.Close()

	if !rm.Readable(0x4) || rm.Readable(0x8) {
		t.Error("Readable gating wrong")
	}
	_, err = rm.Read(0x8)
	if err != EIO {
		t.Fatalf("denied Read: got %v want %v", err, EIO)
	}
	// the typed error carries the raw engine code
	if got, want := int(err.(Errno)), -5; got != want {
		t.Errorf("errno: got %d want %d", got, want)
	}
	if err = rm.Write(0x8, 1); err != nil {
		t.Errorf("write not gated by read table: %v", err)
	}
}

func TestOpenFailureConsumesRegion(t *testing.T) {
	r := anonRegion(t, 4096)
	cfg := New(32, 64) // 64 bit values are not supported over MMIO
	rm, err := Open(nil, r, cfg)
	if err != EINVAL {
		t.Fatalf("Open: got %v want %v", err, EINVAL)
	}
	if rm != nil {
		t.Fatal("failed Open must not return a handle")
	}
	if got, want := r.Close(), mmio.ErrClosed; got != want {
		t.Errorf("region after failed Open: got %v want %v", got, want)
	}
}

func TestCloseExactlyOnce(t *testing.T) {
	r := anonRegion(t, 4096)
	cfg := New(32, 32)
	cfg.RegStride = 4
	rm, err := Open(nil, r, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err = rm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// the transport went down with the handle
	if got, want := r.Close(), mmio.ErrClosed; got != want {
		t.Errorf("region after Close: got %v want %v", got, want)
	}
	// a second Close must not try to release anything again
	if err = rm.Close(); err != nil {
		t.Errorf("second Close: got %v want nil", err)
	}
}

type countCloser struct{ n int }

func (c *countCloser) Close() error { c.n++; return nil }

func TestFromMap(t *testing.T) {
	regs := map[uint32]uint32{0x4: 0x77}
	cc := core.Config{
		RegBits: 32,
		ValBits: 32,
		RegRead: func(ctx interface{}, reg uint32, val *uint32) int {
			*val = regs[reg]
			return 0
		},
		RegWrite: func(ctx interface{}, reg uint32, val uint32) int {
			regs[reg] = val
			return 0
		},
	}
	m, code := core.Init(nil, nil, &cc)
	if code != 0 {
		t.Fatalf("Init: got %d want 0", code)
	}

	closer := new(countCloser)
	rm := FromMap(m, closer)
	val, err := rm.Read(0x4)
	if err != nil || val != 0x77 {
		t.Errorf("Read: got %#x/%v want 0x77/nil", val, err)
	}
	if err = rm.Write(0x8, 0x99); err != nil || regs[0x8] != 0x99 {
		t.Errorf("Write: got %v, regs %#x", err, regs[0x8])
	}

	rm.Close()
	rm.Close()
	if got, want := closer.n, 1; got != want {
		t.Errorf("bus closes: got %d want %d", got, want)
	}

	// nil bus is allowed
	m, _ = core.Init(nil, nil, &cc)
	rm = FromMap(m, nil)
	if err = rm.Close(); err != nil {
		t.Errorf("Close without bus: %v", err)
	}
}

func TestConfigReusable(t *testing.T) {
	cfg := New(32, 32)
	cfg.RegStride = 4
	for i := 0; i < 2; i++ {
		rm, err := Open(nil, anonRegion(t, 4096), cfg)
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
		if err = rm.Write(0x4, uint32(i)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		if err = rm.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}
}

func TestDevice(t *testing.T) {
	if got, want := NewDevice("mfd0").Name(), "mfd0"; got != want {
		t.Errorf("Name: got %s want %s", got, want)
	}
	n := &fdt.Node{Name: "syscon@1c00"}
	if got, want := DeviceFromNode(n).Name(), "syscon@1c00"; got != want {
		t.Errorf("node Name: got %s want %s", got, want)
	}
}

func TestErrno(t *testing.T) {
	if errnoErr(0) != nil {
		t.Error("errnoErr(0): got non-nil")
	}
	if got, want := errnoErr(int(EIO)), error(EIO); got != want {
		t.Errorf("errnoErr: got %v want %v", got, want)
	}
	if s := EIO.Error(); !strings.Contains(s, "-5") {
		t.Errorf("Error: %q lacks the code", s)
	}
}
