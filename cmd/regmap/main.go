// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Peek and poke device registers through a register map.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/platinasystems/regmap"
	"github.com/platinasystems/regmap/mmio"
)

var Usage = `
usage:	regmap [-v] [-big] [-relaxed] [OPTION]... REG [VALUE]

	REG alone reads the register; REG VALUE writes it. Numbers may be
	given in any strconv base 0 form, e.g. 0x10.

options:
	-base ADDR	physical window base address
	-size LEN	window length in bytes (with -base)
	-node NAME	map the window of this device tree node instead
	-dtb FILE	flattened device tree blob (default ` + File + `)
	-reg-bits N	register address width in bits (default 32)
	-val-bits N	register value width in bits (default 32)
	-stride N	register address stride (default val-bits/8)
	-max ADDR	highest valid register address
	-name NAME	map name used in diagnostics
	-big		values are big endian on the bus
	-relaxed	skip ordered 32 bit accesses
	-v		print the map description before the access`

// File is the default device tree blob consulted by -node.
var File = "/boot/linux.dtb"

var Exit = os.Exit
var Stderr io.Writer = os.Stderr

func main() {
	err := Main(os.Args[1:]...)
	if err != nil {
		fmt.Fprintln(Stderr, "regmap:", err)
		Exit(1)
	}
}

func Main(args ...string) error {
	flag, args := flags.New(args, "-h", "-v", "-big", "-relaxed")
	parm, args := parms.New(args, "-base", "-size", "-node", "-dtb",
		"-reg-bits", "-val-bits", "-stride", "-max", "-name")
	if flag.ByName["-h"] {
		fmt.Println(Usage[1:])
		return nil
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%v: usage: regmap [OPTION]... REG [VALUE]",
			args)
	}

	cfg := regmap.New(32, 32)
	for _, x := range []struct {
		name string
		p    *int
	}{
		{"-reg-bits", &cfg.RegBits},
		{"-val-bits", &cfg.ValBits},
		{"-stride", &cfg.RegStride},
	} {
		if s := parm.ByName[x.name]; len(s) > 0 {
			u, err := strconv.ParseUint(s, 0, 16)
			if err != nil {
				return fmt.Errorf("%s: %v", x.name, err)
			}
			*x.p = int(u)
		}
	}
	if cfg.RegStride == 0 {
		cfg.RegStride = cfg.ValBits / 8
	}
	if s := parm.ByName["-max"]; len(s) > 0 {
		u, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("-max: %v", err)
		}
		cfg.MaxRegister = uint32(u)
	}
	cfg.Name = parm.ByName["-name"]
	if flag.ByName["-big"] {
		cfg.ValFormatEndian = regmap.EndianBig
	}
	cfg.UseRelaxedMMIO = flag.ByName["-relaxed"]

	r, err := openWindow(parm)
	if err != nil {
		return err
	}
	rm, err := regmap.Open(regmap.NewDevice(r.Name()), r, cfg)
	if err != nil {
		return err
	}
	defer rm.Close()
	if flag.ByName["-v"] {
		fmt.Println(rm)
	}

	reg64, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("REG: %v", err)
	}
	reg := uint32(reg64)
	if len(args) == 2 {
		val64, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("VALUE: %v", err)
		}
		return rm.Write(reg, uint32(val64))
	}
	val, err := rm.Read(reg)
	if err != nil {
		return err
	}
	fmt.Printf("%#x: %#x\n", reg, val)
	return nil
}

// openWindow maps the register window named by -node or -base/-size.
func openWindow(parm *parms.Parms) (*mmio.Region, error) {
	if node := parm.ByName["-node"]; len(node) > 0 {
		dtb := parm.ByName["-dtb"]
		if len(dtb) == 0 {
			dtb = File
		}
		return mmio.MapNode(dtb, node)
	}
	if len(parm.ByName["-base"]) == 0 {
		return nil, fmt.Errorf("missing -base or -node")
	}
	base, err := strconv.ParseUint(parm.ByName["-base"], 0, 64)
	if err != nil {
		return nil, fmt.Errorf("-base: %v", err)
	}
	if len(parm.ByName["-size"]) == 0 {
		return nil, fmt.Errorf("missing -size")
	}
	size, err := strconv.ParseUint(parm.ByName["-size"], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("-size: %v", err)
	}
	name := parm.ByName["-name"]
	if len(name) == 0 {
		name = fmt.Sprintf("mem@%#x", base)
	}
	return mmio.Map(name, base, uint(size))
}
