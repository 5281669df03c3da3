// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mmio

import (
	"encoding/binary"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/platinasystems/fdt"
)

func TestMapAnon(t *testing.T) {
	r, err := MapAnon("scratch", 4096)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Size(), uint(4096); got != want {
		t.Errorf("Size: got %d want %d", got, want)
	}
	if got, want := r.Name(), "scratch"; got != want {
		t.Errorf("Name: got %s want %s", got, want)
	}
	if r.Base() == nil {
		t.Error("Base: got nil")
	}
	b := r.Bytes()
	if got, want := len(b), 4096; got != want {
		t.Errorf("Bytes: got %d want %d", got, want)
	}
	b[0], b[4095] = 0xaa, 0xbb
	if b[0] != 0xaa || b[4095] != 0xbb {
		t.Error("window not writable")
	}
	if !strings.Contains(r.String(), "scratch") {
		t.Errorf("String: %q lacks name", r.String())
	}

	if err = r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err = r.Close(); err != ErrClosed {
		t.Errorf("second Close: got %v want %v", err, ErrClosed)
	}

	if _, err = MapAnon("zero", 0); err == nil {
		t.Error("zero size: got nil error")
	}
}

// tempWindow writes n pattern bytes to a temp file and returns its path.
func tempWindow(t *testing.T, n int) string {
	t.Helper()
	f, err := ioutil.TempFile("", "mmio-test")
	if err != nil {
		t.Fatal(err)
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	if _, err = f.Write(b); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func TestMapFile(t *testing.T) {
	path := tempWindow(t, 8192)
	defer os.Remove(path)

	r, err := MapFile("window", path, 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	b := r.Bytes()
	if b[0] != 0 || b[15] != 15 {
		t.Errorf("window content: got %d,%d want 0,15", b[0], b[15])
	}
	b[3] = 0xee
	if err = r.Close(); err != nil {
		t.Fatal(err)
	}

	// MAP_SHARED: the store went through to the file
	back, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := back[3], byte(0xee); got != want {
		t.Errorf("writeback: got %#x want %#x", got, want)
	}
}

func TestMapSkew(t *testing.T) {
	path := tempWindow(t, 2*os.Getpagesize())
	defer os.Remove(path)
	defer func(old string) { DevMem = old }(DevMem)
	DevMem = path

	// intentionally page-unaligned address
	r, err := Map("regs", 5, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b := r.Bytes()
	if got, want := b[0], byte(5); got != want {
		t.Errorf("skewed base: got %d want %d", got, want)
	}
	if got, want := b[15], byte(20); got != want {
		t.Errorf("skewed end: got %d want %d", got, want)
	}
	if got, want := r.Size(), uint(16); got != want {
		t.Errorf("Size: got %d want %d", got, want)
	}
}

func cells(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, c := range v {
		binary.BigEndian.PutUint32(b[4*i:], c)
	}
	return b
}

func testTree(reg []byte) *fdt.Tree {
	node := &fdt.Node{
		Name:       "uart@30",
		Depth:      1,
		Properties: map[string][]byte{"reg": reg},
		Children:   map[string]*fdt.Node{},
	}
	return &fdt.Tree{
		RootNode: &fdt.Node{
			Name:       "/",
			Properties: map[string][]byte{},
			Children:   map[string]*fdt.Node{"uart@30": node},
		},
	}
}

func TestMapTreeNode(t *testing.T) {
	path := tempWindow(t, 2*os.Getpagesize())
	defer os.Remove(path)
	defer func(old string) { DevMem = old }(DevMem)
	DevMem = path

	tr := testTree(cells(0x30, 0x40))
	r, err := MapTreeNode(tr, "uart@30")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if got, want := r.Size(), uint(0x40); got != want {
		t.Errorf("Size: got %#x want %#x", got, want)
	}
	if got, want := r.Bytes()[0], byte(0x30); got != want {
		t.Errorf("window start: got %#x want %#x", got, want)
	}
	if got, want := r.Name(), "uart@30"; got != want {
		t.Errorf("Name: got %s want %s", got, want)
	}

	if _, err = MapTreeNode(tr, "spi@0"); err == nil {
		t.Error("missing node: got nil error")
	}
	if _, err = MapTreeNode(testTree(nil), "uart@30"); err == nil {
		t.Error("missing reg: got nil error")
	}
}

func TestNodeReg(t *testing.T) {
	for _, x := range []struct {
		cells      []byte
		addr, size uint64
	}{
		{cells(0x30, 0x40), 0x30, 0x40},
		{cells(1, 0x30, 0x40), 1<<32 | 0x30, 0x40},
		{cells(1, 0x30, 2, 0x40), 1<<32 | 0x30, 2<<32 | 0x40},
	} {
		tr := testTree(x.cells)
		addr, size, err := nodeReg(tr, tr.RootNode.Children["uart@30"])
		if err != nil {
			t.Fatal(err)
		}
		if addr != x.addr || size != x.size {
			t.Errorf("%d cells: got %#x/%#x want %#x/%#x",
				len(x.cells)/4, addr, size, x.addr, x.size)
		}
	}

	tr := testTree(cells(0x30))
	if _, _, err := nodeReg(tr, tr.RootNode.Children["uart@30"]); err == nil {
		t.Error("one cell: got nil error")
	}
}
