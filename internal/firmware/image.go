// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package firmware loads a signed DFU firmware archive (the ".zip" package
// produced by Nordic's nrfutil) into an ordered, in-memory sequence of
// images the dfu package's Orchestrator can stream to a peripheral.
package firmware

// Role identifies which part of the device a firmware image targets.
type Role string

const (
	RoleSoftDeviceBootloader Role = "softdevice_bootloader"
	RoleSoftDevice           Role = "softdevice"
	RoleBootloader           Role = "bootloader"
	RoleApplication          Role = "application"
)

// roleOrder is the deterministic send order the orchestrator follows when a
// package carries more than one image.
var roleOrder = []Role{RoleSoftDeviceBootloader, RoleSoftDevice, RoleBootloader, RoleApplication}

// Image is one (init packet, firmware) pair tagged with the role it targets.
// Both byte slices are read-only for the duration of an upload.
type Image struct {
	Role       Role
	InitPacket []byte
	Firmware   []byte
}

// Package is an ordered sequence of images, at most one per role, in the
// order the archive manifest implies (or roleOrder, when reconstructed from
// a manifest that named more than one role).
type Package struct {
	Images []Image
}

// TotalSize is the sum of every image's init-packet and firmware length,
// used to size an aggregate progress bar across the whole package.
func (p *Package) TotalSize() int64 {
	var total int64
	for _, image := range p.Images {
		total += int64(len(image.InitPacket)) + int64(len(image.Firmware))
	}
	return total
}
