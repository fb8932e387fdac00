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

package dfu

import (
	"time"

	"github.com/dfutools/nrf-dfu/internal/firmware"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Orchestrator drives one Engine across every image of a firmware.Package,
// in package order, sending the init packet then the firmware for each.
// Any fatal error aborts the package; success after the final EXECUTE of the
// last image is the only success condition.
type Orchestrator struct {
	engine   *Engine
	progress Progress
}

// NewOrchestrator builds an Orchestrator around an already-connected Engine.
// progress, if non-nil, is invoked with cumulative bytes accepted across the
// whole package and the package's total byte count.
func NewOrchestrator(engine *Engine, progress Progress) *Orchestrator {
	return &Orchestrator{engine: engine, progress: progress}
}

// Run sends every image in pkg, in order, and returns the first fatal error
// encountered.
func (o *Orchestrator) Run(pkg *firmware.Package) error {
	total := pkg.TotalSize()
	var sent int64

	for _, image := range pkg.Images {
		start := time.Now()
		jww.INFO.Printf("dfu: sending init packet for %s", image.Role)

		sentBefore := sent
		o.engine.OnProgress = func(offset, _ int64) {
			sent = sentBefore + offset
			o.reportProgress(sent, total)
		}

		if err := o.engine.SendInitPacket(image.InitPacket); err != nil {
			return errors.Wrapf(err, "failed to transfer init packet for %s", image.Role)
		}
		sent = sentBefore + int64(len(image.InitPacket))

		jww.INFO.Printf("dfu: sending firmware for %s", image.Role)
		sentBefore = sent
		o.engine.OnProgress = func(offset, _ int64) {
			sent = sentBefore + offset
			o.reportProgress(sent, total)
		}

		if err := o.engine.SendFirmware(image.Firmware); err != nil {
			return errors.Wrapf(err, "failed to transfer firmware for %s", image.Role)
		}
		sent = sentBefore + int64(len(image.Firmware))
		o.reportProgress(sent, total)

		jww.INFO.Printf("dfu: image %s sent in %s", image.Role, time.Since(start).Round(time.Millisecond))
	}

	return nil
}

func (o *Orchestrator) reportProgress(sent, total int64) {
	if o.progress != nil {
		o.progress(sent, total)
	}
}
