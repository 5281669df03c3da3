// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mmio maps device register windows into the process so a regmap
// can be layered on top. Windows come from /dev/mem, from a mappable file
// such as a PCI resource under sysfs, from anonymous memory for tests and
// soft register files, or from the reg property of a flattened device
// tree node.
package mmio

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"syscall"
	"unsafe"

	"github.com/platinasystems/fdt"
)

// DevMem is the device file opened by Map. Tests may point it elsewhere.
var DevMem = "/dev/mem"

var ErrClosed = errors.New("mmio: region closed")

// Region is one mapped register window.
type Region struct {
	name string
	mem  []byte
	off  uintptr // page alignment skew of the mapped address
	size uint
}

// Map maps size bytes of physical address space starting at addr through
// DevMem. addr need not be page aligned; the skew is hidden by Base.
func Map(name string, addr uint64, size uint) (*Region, error) {
	f, err := os.OpenFile(DevMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mapFd(f, name, int64(addr), size)
}

// MapFile maps size bytes at off in a mappable file.
func MapFile(name, path string, off int64, size uint) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mapFd(f, name, off, size)
}

func mapFd(f *os.File, name string, off int64, size uint) (*Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("mmio: %s: zero size", name)
	}
	pg := int64(os.Getpagesize())
	skew := off & (pg - 1)
	mem, err := syscall.Mmap(int(f.Fd()), off-skew, int(int64(size)+skew),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: %s: mmap: %s", name, err)
	}
	return &Region{name: name, mem: mem, off: uintptr(skew), size: size}, nil
}

// MapAnon maps size bytes of zeroed anonymous memory.
func MapAnon(name string, size uint) (*Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("mmio: %s: zero size", name)
	}
	mem, err := syscall.Mmap(-1, 0, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmio: %s: mmap: %s", name, err)
	}
	return &Region{name: name, mem: mem, size: size}, nil
}

// MapNode locates nodeName in the flattened device tree blob at dtb and
// maps the window described by the node's reg property through DevMem.
func MapNode(dtb, nodeName string) (*Region, error) {
	b, err := ioutil.ReadFile(dtb)
	if err != nil {
		return nil, err
	}
	t := &fdt.Tree{}
	if err = t.Parse(b); err != nil {
		return nil, err
	}
	return MapTreeNode(t, nodeName)
}

// MapTreeNode is MapNode on an already parsed tree.
func MapTreeNode(t *fdt.Tree, nodeName string) (*Region, error) {
	var node *fdt.Node
	t.MatchNode(nodeName, func(n *fdt.Node) {
		if node == nil {
			node = n
		}
	})
	if node == nil {
		return nil, fmt.Errorf("mmio: %s: no such node", nodeName)
	}
	addr, size, err := nodeReg(t, node)
	if err != nil {
		return nil, err
	}
	return Map(node.Name, addr, uint(size))
}

// nodeReg decodes the first address and size pair of a node's reg
// property. Cell counts are inferred from the property length instead of
// chasing #address-cells through the parents.
func nodeReg(t *fdt.Tree, n *fdt.Node) (addr, size uint64, err error) {
	b, found := n.Properties["reg"]
	if !found {
		err = fmt.Errorf("mmio: %s: no reg property", n.Name)
		return
	}
	cells := t.PropUint32Slice(b)
	switch len(cells) {
	case 2:
		addr = uint64(cells[0])
		size = uint64(cells[1])
	case 3:
		addr = uint64(cells[0])<<32 | uint64(cells[1])
		size = uint64(cells[2])
	case 4:
		addr = uint64(cells[0])<<32 | uint64(cells[1])
		size = uint64(cells[2])<<32 | uint64(cells[3])
	default:
		err = fmt.Errorf("mmio: %s: can't decode %d reg cells",
			n.Name, len(cells))
	}
	return
}

// Base returns the first byte of the window. The pointer goes stale at
// Close.
func (r *Region) Base() unsafe.Pointer { return unsafe.Pointer(&r.mem[r.off]) }

// Size returns the usable window size in bytes.
func (r *Region) Size() uint { return r.size }

// Name returns the window's diagnostic name.
func (r *Region) Name() string { return r.name }

// Bytes returns the window as a byte slice.
func (r *Region) Bytes() []byte { return r.mem[r.off : r.off+uintptr(r.size)] }

func (r *Region) String() string {
	return fmt.Sprintf("%s: %d bytes", r.name, r.size)
}

// Close unmaps the window. Pointers from Base and Bytes go stale; a
// second Close returns ErrClosed.
func (r *Region) Close() error {
	if r.mem == nil {
		return ErrClosed
	}
	mem := r.mem
	r.mem = nil
	return syscall.Munmap(mem)
}
