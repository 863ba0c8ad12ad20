/*
 * m68kemu - IDE-register-style CompactFlash block device.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package compactflash implements a CompactFlash-style block device behind a
// small IDE/ATA register window (LBA, sector count, command, status, data),
// plus direct ReadSector/WriteSector methods satisfying internal/emuloop's
// BlockDevice interface for the host-service fast path (SPEC_FULL.md §6,
// §12). The two access paths share the same backing file; the register path
// exists for guest software that wants to talk to real-looking IDE hardware,
// the BlockDevice path for the host-service ABI that skips register
// round-trips entirely.
package compactflash

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rcornwell/m68kemu/config/configparser"
	"github.com/rcornwell/m68kemu/internal/machine"
)

const sectorSize = 512

// Register offsets from the device's configured base address.
const (
	regLBA    = 0 // 32-bit, read/write
	regCount  = 4 // 8-bit, read/write
	regCmd    = 5 // 8-bit, write (command)
	regStatus = 6 // 8-bit, read
	regData   = 7 // 8-bit, read/write, auto-incrementing through the sector buffer
)

// ATA commands this model understands.
const (
	cmdReadSector  = 0x20
	cmdWriteSector = 0x30
	cmdIdentify    = 0xEC
)

const statusDRQ = 1 << 3 // data request: sector buffer ready for transfer

// CompactFlash is a fixed-geometry block device backed by a flat file: file
// size must be a whole number of 512-byte sectors.
type CompactFlash struct {
	svc     machine.Services
	name    string
	file    *os.File
	sectors uint32

	lba   uint32
	count uint8

	buf     [sectorSize]byte
	bufPos  int
	writing bool
	drq     bool
}

// New opens path and constructs a CompactFlash device. Recognized options:
// "address" (required bus address for the register window) and "file"
// (required, path to the backing image).
func New(svc machine.Services, name string, opts machine.Options) (machine.Device, error) {
	address, ok := opts.Address()
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "compactflash requires a bus address"}
	}
	path, ok := opts["file"]
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "compactflash requires a file option"}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, &machine.ConfigError{Device: name, Reason: fmt.Sprintf("opening %s: %v", path, err)}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &machine.ConfigError{Device: name, Reason: fmt.Sprintf("stat %s: %v", path, err)}
	}
	if info.Size()%sectorSize != 0 {
		f.Close()
		return nil, &machine.ConfigError{Device: name, Reason: fmt.Sprintf(
			"%s size %d is not a multiple of %d bytes", path, info.Size(), sectorSize)}
	}

	cf := &CompactFlash{
		svc:     svc,
		name:    name,
		file:    f,
		sectors: uint32(info.Size() / sectorSize),
	}

	regs := []*machine.RegisterDescriptor{
		{DeviceName: name, RegisterName: "lba", Address: address + regLBA, Width: machine.Width32, Direction: machine.DirRead, Read: cf.readLBA},
		{DeviceName: name, RegisterName: "lba", Address: address + regLBA, Width: machine.Width32, Direction: machine.DirWrite, Write: cf.writeLBA},
		{DeviceName: name, RegisterName: "count", Address: address + regCount, Width: machine.Width8, Direction: machine.DirRead, Read: cf.readCount},
		{DeviceName: name, RegisterName: "count", Address: address + regCount, Width: machine.Width8, Direction: machine.DirWrite, Write: cf.writeCount},
		{DeviceName: name, RegisterName: "command", Address: address + regCmd, Width: machine.Width8, Direction: machine.DirWrite, Write: cf.writeCommand},
		{DeviceName: name, RegisterName: "status", Address: address + regStatus, Width: machine.Width8, Direction: machine.DirRead, Read: cf.readStatus},
		{DeviceName: name, RegisterName: "data", Address: address + regData, Width: machine.Width8, Direction: machine.DirRead, Read: cf.readData},
		{DeviceName: name, RegisterName: "data", Address: address + regData, Width: machine.Width8, Direction: machine.DirWrite, Write: cf.writeData},
	}
	for _, r := range regs {
		if err := svc.AddRegister(r); err != nil {
			f.Close()
			return nil, err
		}
	}

	return cf, nil
}

// Reset clears the pending transfer state without touching the backing file.
func (cf *CompactFlash) Reset() error {
	cf.lba = 0
	cf.count = 0
	cf.bufPos = 0
	cf.writing = false
	cf.drq = false
	return nil
}

// GetVector always reports spurious: this model does not use interrupts,
// transfers are polled via the status register's DRQ bit.
func (cf *CompactFlash) GetVector(ipl int) uint32 { return machine.VectorSpurious }

func (cf *CompactFlash) readLBA() uint32  { return cf.lba }
func (cf *CompactFlash) writeLBA(v uint32) { cf.lba = v }
func (cf *CompactFlash) readCount() uint32 { return uint32(cf.count) }
func (cf *CompactFlash) writeCount(v uint32) { cf.count = uint8(v) }

func (cf *CompactFlash) readStatus() uint32 {
	if cf.drq {
		return statusDRQ
	}
	return 0
}

func (cf *CompactFlash) writeCommand(v uint32) {
	switch v {
	case cmdIdentify:
		cf.identify()
		cf.bufPos = 0
		cf.writing = false
		cf.drq = true
	case cmdReadSector:
		if err := cf.ReadSector(cf.lba, cf.buf[:]); err != nil {
			cf.drq = false
			return
		}
		cf.bufPos = 0
		cf.writing = false
		cf.drq = true
	case cmdWriteSector:
		cf.buf = [sectorSize]byte{}
		cf.bufPos = 0
		cf.writing = true
		cf.drq = true
	}
}

// readData returns the next byte of the sector buffer filled by a prior
// IDENTIFY or READ SECTOR command, clearing DRQ once fully drained.
func (cf *CompactFlash) readData() uint32 {
	if !cf.drq || cf.writing || cf.bufPos >= sectorSize {
		return 0
	}
	v := cf.buf[cf.bufPos]
	cf.bufPos++
	if cf.bufPos >= sectorSize {
		cf.drq = false
	}
	return uint32(v)
}

// writeData accepts the next byte of a WRITE SECTOR transfer, committing the
// full sector to the backing file once 512 bytes have arrived.
func (cf *CompactFlash) writeData(v uint32) {
	if !cf.drq || !cf.writing || cf.bufPos >= sectorSize {
		return
	}
	cf.buf[cf.bufPos] = byte(v)
	cf.bufPos++
	if cf.bufPos >= sectorSize {
		cf.drq = false
		_ = cf.WriteSector(cf.lba, cf.buf[:])
	}
}

// identify fills the sector buffer with a minimal ATA IDENTIFY DEVICE
// response: bytes 60-63 hold the total sector count as two little-endian
// 16-bit halves, low half at byte 60 -- the one place this otherwise
// big-endian register window exposes a little-endian field.
func (cf *CompactFlash) identify() {
	cf.buf = [sectorSize]byte{}
	binary.LittleEndian.PutUint16(cf.buf[60:62], uint16(cf.sectors&0xFFFF))
	binary.LittleEndian.PutUint16(cf.buf[62:64], uint16(cf.sectors>>16))
}

// ReadSector implements emuloop.BlockDevice: a direct, register-free sector
// read for the host-service block-transfer fast path.
func (cf *CompactFlash) ReadSector(lba uint32, dst []byte) error {
	if lba >= cf.sectors {
		return fmt.Errorf("compactflash: lba %d out of range (%d sectors)", lba, cf.sectors)
	}
	_, err := cf.file.ReadAt(dst[:sectorSize], int64(lba)*sectorSize)
	return err
}

// WriteSector implements emuloop.BlockDevice: a direct, register-free sector
// write for the host-service block-transfer fast path.
func (cf *CompactFlash) WriteSector(lba uint32, src []byte) error {
	if lba >= cf.sectors {
		return fmt.Errorf("compactflash: lba %d out of range (%d sectors)", lba, cf.sectors)
	}
	_, err := cf.file.WriteAt(src[:sectorSize], int64(lba)*sectorSize)
	return err
}

func init() {
	configparser.RegisterModel("compactflash", configparser.TypeModel, New)
}
