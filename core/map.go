// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package core

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/platinasystems/log"
)

// bus moves one formatted register access to the underlying transport.
type bus interface {
	read(reg uint32, val *uint32) int
	write(reg uint32, val uint32) int
}

// cbBus adapts the RegRead and RegWrite config callbacks to the bus
// interface for maps initialized without real transport.
type cbBus struct {
	ctx interface{}
	rd  RegReadFn
	wr  RegWriteFn
}

func (b *cbBus) read(reg uint32, val *uint32) int { return b.rd(b.ctx, reg, val) }
func (b *cbBus) write(reg uint32, val uint32) int { return b.wr(b.ctx, reg, val) }

// accessTable is the engine's private copy of one AccessTable.
type accessTable struct {
	yes []Range
	no  []Range
}

// allows applies the usual precedence: a register in any no range is
// denied, an empty yes list then allows everything else, otherwise the
// register must fall in some yes range. A nil table allows everything.
func (t *accessTable) allows(reg uint32) bool {
	if t == nil {
		return true
	}
	for i := range t.no {
		if t.no[i].In(reg) {
			return false
		}
	}
	if len(t.yes) == 0 {
		return true
	}
	for i := range t.yes {
		if t.yes[i].In(reg) {
			return true
		}
	}
	return false
}

// rangeWindow is the engine's copy of one RangeCfg plus the selector page
// last programmed into the device.
type rangeWindow struct {
	name     string
	min, max uint32

	selReg   uint32
	selMask  uint32
	selShift int32

	winStart uint32
	winLen   uint32

	page      uint32
	pageValid bool
}

func (w *rangeWindow) in(reg uint32) bool { return reg >= w.min && reg <= w.max }

// Map is an initialized register map. Its methods follow the kernel
// convention of returning 0 on success and a negative errno on failure.
type Map struct {
	dev  *Device
	name string

	bus bus
	ctx interface{}

	lock   func()
	unlock func()
	mu     sync.Mutex

	regStride uint32
	downshift uint
	regBase   uint32
	maxReg    uint32 // 0 means no limit

	wrReg, rdReg     RegPredicate
	volReg, precReg  RegPredicate
	wrNoinc, rdNoinc RegPredicate
	updateBitsFn     RegUpdateBitsFn

	wrTable, rdTable    *accessTable
	volTable, precTable *accessTable
	wrNoincTable        *accessTable
	rdNoincTable        *accessTable

	ranges   []rangeWindow
	defaults []RegDefault

	// flag masks are kept as configured; no bus here has default masks
	readFlagMask  uint64
	writeFlagMask uint64

	useSingleRead  bool
	useSingleWrite bool
	canMultiWrite  bool
	canSleep       bool
	fastIO         bool
	ioPort         bool

	regBits int
	valBits int
}

// InitMMIO builds a register map over device memory mapped at base. On
// failure the second return value is the negative errno a kernel caller
// would decode from the ERR_PTR of __regmap_init_mmio.
func InitMMIO(dev *Device, base unsafe.Pointer, cfg *Config) (*Map, int) {
	if cfg == nil || base == nil {
		return nil, EINVAL
	}
	b, code := newMMIOBus(base, cfg)
	if code != 0 {
		return nil, code
	}
	return initMap(dev, b, b, cfg)
}

// Init builds a busless register map whose accesses go through the
// RegRead and RegWrite callbacks of cfg; ctx is passed through to every
// callback.
func Init(dev *Device, ctx interface{}, cfg *Config) (*Map, int) {
	if cfg == nil || cfg.RegRead == nil || cfg.RegWrite == nil {
		return nil, EINVAL
	}
	b := &cbBus{ctx: ctx, rd: cfg.RegRead, wr: cfg.RegWrite}
	return initMap(dev, b, ctx, cfg)
}

func initMap(dev *Device, b bus, ctx interface{}, cfg *Config) (*Map, int) {
	if cfg.RegBits <= 0 || cfg.ValBits <= 0 {
		return nil, EINVAL
	}
	if cfg.RegStride < 0 || cfg.RegDownshift < 0 {
		return nil, EINVAL
	}
	m := &Map{
		dev:       dev,
		name:      cfg.Name,
		bus:       b,
		ctx:       ctx,
		regStride: uint32(cfg.RegStride),
		downshift: uint(cfg.RegDownshift),
		regBase:   cfg.RegBase,
		maxReg:    cfg.MaxRegister,

		wrReg:   cfg.WriteableReg,
		rdReg:   cfg.ReadableReg,
		volReg:  cfg.VolatileReg,
		precReg: cfg.PreciousReg,
		wrNoinc: cfg.WriteableNoincReg,
		rdNoinc: cfg.ReadableNoincReg,

		updateBitsFn: cfg.RegUpdateBits,

		readFlagMask:  cfg.ReadFlagMask,
		writeFlagMask: cfg.WriteFlagMask,

		useSingleRead:  cfg.UseSingleRead,
		useSingleWrite: cfg.UseSingleWrite,
		canMultiWrite:  cfg.CanMultiWrite,
		canSleep:       cfg.CanSleep,
		fastIO:         cfg.FastIO,
		ioPort:         cfg.IOPort,

		regBits: cfg.RegBits,
		valBits: cfg.ValBits,
	}
	if m.name == "" && dev != nil {
		m.name = dev.Name
	}
	if m.regStride == 0 {
		m.regStride = 1
	}

	if cfg.CacheType != CacheNone {
		log.Print("regmap: ", m.Name(), ": cache type ", cfg.CacheType,
			" not supported")
		return nil, EINVAL
	}
	if n := cfg.NumRegDefaults; n != 0 {
		if cfg.RegDefaults == nil {
			return nil, EINVAL
		}
		m.defaults = copyRegDefaults(cfg.RegDefaults, n)
		log.Print("regmap: ", m.Name(), ": ", n,
			" register defaults recorded without a cache to seed")
	}

	m.wrTable = copyTable(cfg.WrTable)
	m.rdTable = copyTable(cfg.RdTable)
	m.volTable = copyTable(cfg.VolatileTable)
	m.precTable = copyTable(cfg.PreciousTable)
	m.wrNoincTable = copyTable(cfg.WrNoincTable)
	m.rdNoincTable = copyTable(cfg.RdNoincTable)

	if code := m.addRanges(cfg.Ranges, cfg.NumRanges); code != 0 {
		return nil, code
	}

	switch {
	case cfg.DisableLocking:
		m.lock = func() {}
		m.unlock = m.lock
	case cfg.Lock != nil && cfg.Unlock != nil:
		lf, uf, arg := cfg.Lock, cfg.Unlock, cfg.LockArg
		m.lock = func() { lf(arg) }
		m.unlock = func() { uf(arg) }
	case cfg.UseHwlock:
		log.Print("regmap: ", m.Name(), ": no hwspinlock support")
		return nil, ENXIO
	default:
		m.lock = m.mu.Lock
		m.unlock = m.mu.Unlock
	}
	return m, 0
}

// addRanges copies and sanity checks the indirect access windows. The
// selector register and the data window must stay directly addressable,
// so neither may fall inside any virtual span.
func (m *Map) addRanges(p *RangeCfg, n uint32) int {
	if n == 0 {
		return 0
	}
	if p == nil {
		return EINVAL
	}
	m.ranges = make([]rangeWindow, n)
	sz := unsafe.Sizeof(RangeCfg{})
	for i := range m.ranges {
		cfg := (*RangeCfg)(unsafe.Add(unsafe.Pointer(p), uintptr(i)*sz))
		w := &m.ranges[i]
		w.name = cfg.Name
		w.min, w.max = cfg.RangeMin, cfg.RangeMax
		w.selReg = cfg.SelectorReg
		w.selMask = cfg.SelectorMask
		w.selShift = cfg.SelectorShift
		w.winStart, w.winLen = cfg.WindowStart, cfg.WindowLen
		if w.max < w.min || w.winLen == 0 {
			m.ranges = nil
			return EINVAL
		}
		if m.maxReg != 0 && (w.max > m.maxReg || w.selReg > m.maxReg) {
			m.ranges = nil
			return EINVAL
		}
	}
	for i := range m.ranges {
		w := &m.ranges[i]
		winMax := w.winStart + w.winLen - 1
		for j := range m.ranges {
			v := &m.ranges[j]
			if v.in(w.selReg) {
				m.ranges = nil
				return EINVAL
			}
			// a data window may sit inside its own virtual span
			if i == j {
				continue
			}
			if !(winMax < v.min || w.winStart > v.max) {
				m.ranges = nil
				return EINVAL
			}
		}
	}
	return 0
}

// Exit tears the map down. Using the map afterwards is invalid.
func (m *Map) Exit() {
	if m == nil {
		return
	}
	m.lock()
	m.bus = nil
	m.ranges = nil
	m.defaults = nil
	m.unlock()
}

// Name returns the map's diagnostic name.
func (m *Map) Name() string {
	if m.name != "" {
		return m.name
	}
	return "regmap"
}

// MaxRegister returns the highest valid register address, 0 when the map
// has no limit.
func (m *Map) MaxRegister() uint32 { return m.maxReg }

// RegStride returns the register address stride, at least 1.
func (m *Map) RegStride() uint32 { return m.regStride }

// Defaults returns a copy of the recorded power-on register defaults.
func (m *Map) Defaults() []RegDefault {
	if len(m.defaults) == 0 {
		return nil
	}
	v := make([]RegDefault, len(m.defaults))
	copy(v, m.defaults)
	return v
}

// Writeable reports whether reg may be written through this map.
func (m *Map) Writeable(reg uint32) bool {
	if m.maxReg != 0 && reg > m.maxReg {
		return false
	}
	if m.wrReg != nil {
		return m.wrReg(m.dev, reg)
	}
	return m.wrTable.allows(reg)
}

// Readable reports whether reg may be read through this map.
func (m *Map) Readable(reg uint32) bool {
	if m.maxReg != 0 && reg > m.maxReg {
		return false
	}
	if m.rdReg != nil {
		return m.rdReg(m.dev, reg)
	}
	return m.rdTable.allows(reg)
}

// Volatile reports whether reg must always be read from hardware. With no
// cache compiled in every readable register is effectively volatile.
func (m *Map) Volatile(reg uint32) bool {
	if !m.Readable(reg) {
		return false
	}
	if m.volReg != nil {
		return m.volReg(m.dev, reg)
	}
	if m.volTable != nil {
		return m.volTable.allows(reg)
	}
	return true
}

// Precious reports whether reading reg has side effects, such as clear on
// read interrupt status registers.
func (m *Map) Precious(reg uint32) bool {
	if m.precReg != nil {
		return m.precReg(m.dev, reg)
	}
	if m.precTable != nil {
		return m.precTable.allows(reg)
	}
	return false
}

// Read reads one register into *val. It fails with EINVAL when reg does
// not sit on the map's stride and EIO when reg is not readable.
func (m *Map) Read(reg uint32, val *uint32) int {
	if m == nil || val == nil {
		return EINVAL
	}
	m.lock()
	code := m.read(reg, val)
	m.unlock()
	return code
}

// Write writes one register. The same EINVAL and EIO rules as Read apply.
func (m *Map) Write(reg, val uint32) int {
	if m == nil {
		return EINVAL
	}
	m.lock()
	code := m.write(reg, val)
	m.unlock()
	return code
}

// UpdateBits read-modify-writes the mask portion of one register. The
// write is skipped when the register value would not change.
func (m *Map) UpdateBits(reg, mask, val uint32) int {
	if m == nil {
		return EINVAL
	}
	m.lock()
	code := m.updateBits(reg, mask, val)
	m.unlock()
	return code
}

func (m *Map) read(reg uint32, val *uint32) int {
	if reg%m.regStride != 0 {
		return EINVAL
	}
	if !m.Readable(reg) {
		return EIO
	}
	hw, code := m.selectPage(reg)
	if code != 0 {
		return code
	}
	return m.bus.read(m.format(hw), val)
}

func (m *Map) write(reg uint32, val uint32) int {
	if reg%m.regStride != 0 {
		return EINVAL
	}
	if !m.Writeable(reg) {
		return EIO
	}
	hw, code := m.selectPage(reg)
	if code != 0 {
		return code
	}
	return m.bus.write(m.format(hw), val)
}

func (m *Map) updateBits(reg, mask, val uint32) int {
	if m.updateBitsFn != nil {
		return m.updateBitsFn(m.ctx, reg, mask, val)
	}
	var old uint32
	if code := m.read(reg, &old); code != 0 {
		return code
	}
	nv := (old &^ mask) | (val & mask)
	if nv == old {
		return 0
	}
	return m.write(reg, nv)
}

// format turns a register address into the offset handed to the bus.
func (m *Map) format(reg uint32) uint32 {
	reg += m.regBase
	reg >>= m.downshift
	return reg
}

// selectPage resolves a virtual register onto its data window, first
// programming the page selector when the cached page does not match.
// Registers outside every range pass through unchanged.
func (m *Map) selectPage(reg uint32) (uint32, int) {
	for i := range m.ranges {
		w := &m.ranges[i]
		if !w.in(reg) {
			continue
		}
		off := reg - w.min
		page := off / w.winLen
		if !w.pageValid || page != w.page {
			code := m.updateBits(w.selReg, w.selMask,
				page<<uint(w.selShift))
			if code != 0 {
				return 0, code
			}
			w.page, w.pageValid = page, true
		}
		return w.winStart + off%w.winLen, 0
	}
	return reg, 0
}

func (m *Map) String() string {
	s := fmt.Sprintf("%s: %d/%d reg/val bits, stride %d",
		m.Name(), m.regBits, m.valBits, m.regStride)
	if m.maxReg != 0 {
		s += fmt.Sprintf(", max register 0x%x", m.maxReg)
	}
	if n := len(m.ranges); n != 0 {
		s += fmt.Sprintf(", %d windows", n)
	}
	if n := len(m.defaults); n != 0 {
		s += fmt.Sprintf(", %d defaults", n)
	}
	return s
}

func copyTable(t *AccessTable) *accessTable {
	if t == nil {
		return nil
	}
	return &accessTable{
		yes: copyRanges(t.YesRanges, t.NYesRanges),
		no:  copyRanges(t.NoRanges, t.NNoRanges),
	}
}

func copyRanges(p *Range, n uint32) []Range {
	if p == nil || n == 0 {
		return nil
	}
	v := make([]Range, n)
	sz := unsafe.Sizeof(Range{})
	for i := range v {
		v[i] = *(*Range)(unsafe.Add(unsafe.Pointer(p), uintptr(i)*sz))
	}
	return v
}

func copyRegDefaults(p *RegDefault, n uint32) []RegDefault {
	if p == nil || n == 0 {
		return nil
	}
	v := make([]RegDefault, n)
	sz := unsafe.Sizeof(RegDefault{})
	for i := range v {
		v[i] = *(*RegDefault)(unsafe.Add(unsafe.Pointer(p), uintptr(i)*sz))
	}
	return v
}
