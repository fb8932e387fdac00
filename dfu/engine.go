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
	"hash/crc32"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// objectState names the per-object state machine from IDLE through EXECUTED,
// used only to make the engine's debug log trace legible; it is not itself
// enforced as a guard, the control flow in SendInitPacket/SendFirmware is.
type objectState int

const (
	stateIdle objectState = iota
	stateSelected
	stateCreated
	stateStreaming
	stateChecked
	stateExecuted
)

func (s objectState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSelected:
		return "selected"
	case stateCreated:
		return "created"
	case stateStreaming:
		return "streaming"
	case stateChecked:
		return "checked"
	case stateExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Progress reports bytes accepted by the device for the phase currently in
// flight (init packet or firmware), out of total bytes for that phase.
type Progress func(offset, total int64)

// Engine drives the per-object select/create/stream/checkpoint/execute
// sequence against one connected peripheral. It is constructed once per
// device and lives across every image of a package; only the transfer
// cursor is reset between the init-packet and firmware phase of each image.
type Engine struct {
	transport Transport
	router    *router
	prn       uint16

	OnProgress Progress
}

// NewEngine wires an Engine to transport, subscribing to control-point
// notifications and configuring the device's packet-receipt-notification
// interval. prn == 0 disables host-initiated mid-stream checkpoints (the
// engine still performs one final CRC_GET per object).
func NewEngine(transport Transport, timeout time.Duration, prn uint16) (*Engine, error) {
	r, err := newRouter(transport, timeout)
	if err != nil {
		return nil, err
	}

	e := &Engine{transport: transport, router: r, prn: prn}

	raw, err := e.router.request(OpPrnSet, encodePrnSet(prn))
	if err != nil {
		return nil, err
	}
	if _, err := decodeResponseHeader(OpPrnSet, raw); err != nil {
		return nil, err
	}

	return e, nil
}

// Close tears down the engine's control-point subscription.
func (e *Engine) Close() error {
	return e.router.close()
}

func (e *Engine) selectObject(objType ObjectType) (SelectResponse, error) {
	raw, err := e.router.request(OpObjectSelect, encodeObjectSelect(objType))
	if err != nil {
		return SelectResponse{}, err
	}
	payload, err := decodeResponseHeader(OpObjectSelect, raw)
	if err != nil {
		return SelectResponse{}, err
	}
	return decodeSelectResponse(payload)
}

func (e *Engine) createObject(objType ObjectType, size uint32) error {
	raw, err := e.router.request(OpObjectCreate, encodeObjectCreate(objType, size))
	if err != nil {
		return err
	}
	_, err = decodeResponseHeader(OpObjectCreate, raw)
	return err
}

func (e *Engine) crcGet() (ChecksumResponse, error) {
	raw, err := e.router.request(OpCrcGet, nil)
	if err != nil {
		return ChecksumResponse{}, err
	}
	payload, err := decodeResponseHeader(OpCrcGet, raw)
	if err != nil {
		return ChecksumResponse{}, err
	}
	return decodeChecksumResponse(payload)
}

func (e *Engine) execute() error {
	raw, err := e.router.request(OpObjectExecute, nil)
	if err != nil {
		return err
	}
	_, err = decodeResponseHeader(OpObjectExecute, raw)
	return err
}

// checkpoint issues CRC_GET and validates the device's (offset, crc) against
// the host's. A mismatch is reported as *ValidationError, which the caller
// resolves via retry or rewind rather than propagating.
func (e *Engine) checkpoint(wantOffset, wantCrc uint32) error {
	got, err := e.crcGet()
	if err != nil {
		return err
	}
	if got.Offset != wantOffset || got.Crc32 != wantCrc {
		return &ValidationError{
			WantOffset: wantOffset, GotOffset: got.Offset,
			WantCrc: wantCrc, GotCrc: got.Crc32,
		}
	}
	return nil
}

// streamData writes data to the data-point characteristic in PacketSize
// fragments, maintaining the running CRC/offset and issuing a CRC_GET
// checkpoint every prn fragments (if prn > 0) plus one final checkpoint
// after the last fragment. It returns the validated (crc, offset) pair.
func (e *Engine) streamData(data []byte, crc, offset uint32) (uint32, uint32, error) {
	jww.DEBUG.Printf("dfu: %s len=%d offset=%d crc=0x%08x", stateStreaming, len(data), offset, crc)

	packetSize := e.transport.PacketSize()
	prnCounter := uint16(0)

	for i := 0; i < len(data); i += packetSize {
		end := i + packetSize
		if end > len(data) {
			end = len(data)
		}
		fragment := data[i:end]

		if err := e.transport.WriteDataPoint(fragment); err != nil {
			return crc, offset, err
		}

		crc = crc32.Update(crc, crc32.IEEETable, fragment)
		offset += uint32(len(fragment))

		if e.prn > 0 {
			prnCounter++
			if prnCounter == e.prn {
				prnCounter = 0
				if err := e.checkpoint(offset, crc); err != nil {
					return crc, offset, err
				}
				jww.DEBUG.Printf("dfu: %s offset=%d crc=0x%08x", stateChecked, offset, crc)
			}
		}
	}

	if err := e.checkpoint(offset, crc); err != nil {
		return crc, offset, err
	}
	jww.DEBUG.Printf("dfu: %s offset=%d crc=0x%08x", stateChecked, offset, crc)

	return crc, offset, nil
}

func (e *Engine) reportProgress(offset, total int64) {
	if e.OnProgress != nil {
		e.OnProgress(offset, total)
	}
}
