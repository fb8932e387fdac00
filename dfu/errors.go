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

import "fmt"

// TimeoutError is returned by the response router when no notification
// arrives on the control-point characteristic within the configured
// deadline. The engine does not retry it: SendInitPacket and SendFirmware
// return it to the caller.
type TimeoutError struct {
	Opcode Opcode
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dfu: timed out waiting for response to opcode 0x%02x", byte(e.Opcode))
}

// ProtocolError reports a malformed response frame: a short frame, a bad
// response marker, a mismatched echoed opcode, or an unrecognised result
// code. It is always fatal.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "dfu: protocol error: " + e.Reason
}

// DeviceError reports a non-success result code from the peripheral. Ext is
// only meaningful when Code is ResultExtError.
type DeviceError struct {
	Opcode Opcode
	Code   Result
	Ext    ExtError
}

func (e *DeviceError) Error() string {
	if e.Code == ResultExtError {
		return fmt.Sprintf("dfu: device rejected opcode 0x%02x: %s (%s)", byte(e.Opcode), e.Code, e.Ext)
	}
	return fmt.Sprintf("dfu: device rejected opcode 0x%02x: %s", byte(e.Opcode), e.Code)
}

// ValidationError reports that the host's CRC or offset disagrees with the
// device's after a checkpoint. It is always caught inside the engine and
// resolved by retry or rewind; it is never returned to the orchestrator.
type ValidationError struct {
	WantOffset, GotOffset uint32
	WantCrc, GotCrc       uint32
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dfu: checkpoint mismatch: offset want=%d got=%d crc want=0x%08x got=0x%08x",
		e.WantOffset, e.GotOffset, e.WantCrc, e.GotCrc)
}

// PackageTooLargeError reports that an init packet exceeds the COMMAND
// object's max_size as reported by the device. The upload is aborted before
// any bytes are sent.
type PackageTooLargeError struct {
	Size, MaxSize uint32
}

func (e *PackageTooLargeError) Error() string {
	return fmt.Sprintf("dfu: init packet of %d bytes exceeds device max_size of %d", e.Size, e.MaxSize)
}

// TransportError wraps a failure from the GATT layer itself (disconnect,
// write failure) so callers can distinguish it from protocol-level errors.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return "dfu: transport error: " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// InitPacketFailedError reports that the init-packet phase exhausted its
// retries without a successful EXECUTE.
type InitPacketFailedError struct{}

func (e *InitPacketFailedError) Error() string {
	return "dfu: failed to send init packet after retries exhausted"
}

// FirmwareFailedError reports that the firmware phase exhausted its retries
// for one sub-object without a successful EXECUTE.
type FirmwareFailedError struct {
	Offset uint32
}

func (e *FirmwareFailedError) Error() string {
	return fmt.Sprintf("dfu: failed to send firmware object at offset %d after retries exhausted", e.Offset)
}
