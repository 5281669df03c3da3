// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Regmapd periodically reads device registers through a register map and
// publishes values that changed to the local redis server. With -remote
// it also mirrors them into a hash on another redis, e.g. the BMC's.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/jpillora/backoff"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"

	"github.com/platinasystems/regmap"
	"github.com/platinasystems/regmap/mmio"
)

var Usage = `
usage:	regmapd [-big] [-relaxed] [OPTION]... [NAME=REG]...

	Each NAME=REG names a register to poll. Changed values are
	published as PREFIX.NAME where PREFIX defaults to the map name.

options:
	-base ADDR	physical window base address
	-size LEN	window length in bytes (with -base)
	-node NAME	map the window of this device tree node instead
	-dtb FILE	flattened device tree blob (default ` + File + `)
	-reg-bits N	register address width in bits (default 32)
	-val-bits N	register value width in bits (default 32)
	-stride N	register address stride (default val-bits/8)
	-name NAME	map name and default publish prefix
	-prefix S	publish keys as S.NAME
	-i SECONDS	poll interval (default 5)
	-machine NAME	local redis hash of the goes machine (default platina)
	-remote ADDR	mirror values to the redis server at ADDR
	-hash NAME	remote hash name (default the -machine hash)
	-big		values are big endian on the bus
	-relaxed	skip ordered 32 bit accesses`

// File is the default device tree blob consulted by -node.
var File = "/boot/linux.dtb"

var Exit = os.Exit
var Stderr io.Writer = os.Stderr

func main() {
	err := Main(os.Args[1:]...)
	if err != nil {
		fmt.Fprintln(Stderr, "regmapd:", err)
		Exit(1)
	}
}

type namedReg struct {
	name string
	reg  uint32
}

type daemon struct {
	rm     *regmap.Regmap
	pub    *publisher.Publisher
	prefix string
	regs   []namedReg
	remote string
	hash   string
	last   map[string]uint32
	have   map[string]bool
	bad    map[string]bool
}

func Main(args ...string) error {
	flag, args := flags.New(args, "-h", "-big", "-relaxed")
	parm, args := parms.New(args, "-base", "-size", "-node", "-dtb",
		"-reg-bits", "-val-bits", "-stride", "-name", "-prefix",
		"-i", "-machine", "-remote", "-hash")
	if flag.ByName["-h"] {
		fmt.Println(Usage[1:])
		return nil
	}

	redis.DefaultHash = parm.ByName["-machine"]
	if len(redis.DefaultHash) == 0 {
		redis.DefaultHash = "platina"
	}
	d := &daemon{
		remote: parm.ByName["-remote"],
		hash:   parm.ByName["-hash"],
		last:   make(map[string]uint32),
		have:   make(map[string]bool),
		bad:    make(map[string]bool),
	}
	if len(d.hash) == 0 {
		d.hash = redis.DefaultHash
	}
	interval := 5
	if s := parm.ByName["-i"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &interval); err != nil {
			return fmt.Errorf("-i: %v", err)
		}
		if interval <= 0 {
			return fmt.Errorf("-i: %d: must be positive", interval)
		}
	}
	for _, arg := range args {
		eq := strings.Index(arg, "=")
		if eq <= 0 {
			return fmt.Errorf("%s: expected NAME=REG", arg)
		}
		u, err := strconv.ParseUint(arg[eq+1:], 0, 32)
		if err != nil {
			return fmt.Errorf("%s: %v", arg, err)
		}
		d.regs = append(d.regs, namedReg{arg[:eq], uint32(u)})
	}
	if len(d.regs) == 0 {
		return fmt.Errorf("no registers to poll")
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
	cfg.Name = parm.ByName["-name"]
	if flag.ByName["-big"] {
		cfg.ValFormatEndian = regmap.EndianBig
	}
	cfg.UseRelaxedMMIO = flag.ByName["-relaxed"]

	r, err := openWindow(parm)
	if err != nil {
		return err
	}
	d.rm, err = regmap.Open(regmap.NewDevice(r.Name()), r, cfg)
	if err != nil {
		return err
	}
	defer d.rm.Close()

	d.prefix = parm.ByName["-prefix"]
	if len(d.prefix) == 0 {
		if len(cfg.Name) > 0 {
			d.prefix = cfg.Name
		} else {
			d.prefix = r.Name()
		}
	}

	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	for {
		if err = redis.IsReady(); err == nil {
			break
		}
		t := b.Duration()
		log.Print("regmapd: redis not ready, retry in ", t)
		time.Sleep(t)
	}

	if d.pub, err = publisher.New(); err != nil {
		return err
	}
	defer d.pub.Close()
	log.Print("regmapd: ", d.rm)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	d.update()
	t := time.NewTicker(time.Duration(interval) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-t.C:
			d.update()
		}
	}
}

func (d *daemon) update() {
	var remote redigo.Conn
	if len(d.remote) > 0 {
		c, err := redigo.Dial("tcp", d.remote)
		if err == nil {
			remote = c
			defer c.Close()
		}
	}
	for _, nr := range d.regs {
		k := d.prefix + "." + nr.name
		v, err := d.rm.Read(nr.reg)
		if err != nil {
			if !d.bad[k] {
				log.Print("regmapd: ", k, ": ", err)
				d.bad[k] = true
			}
			continue
		}
		d.bad[k] = false
		if d.have[k] && v == d.last[k] {
			continue
		}
		d.pub.Print(k, ": ", fmt.Sprintf("%#x", v))
		if remote != nil {
			remote.Do("HSET", d.hash, k, fmt.Sprintf("%#x", v))
		}
		d.last[k] = v
		d.have[k] = true
	}
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
