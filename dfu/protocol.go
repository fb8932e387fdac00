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

// Package dfu implements the Nordic Semiconductor Secure DFU object-transfer
// protocol: the control-point wire codec, the data-point streaming pipeline,
// and the per-object select/create/stream/execute state machine with its
// recovery and retry policy.
package dfu

import "time"

// Opcode identifies a control-point request or the echoed opcode of a response.
type Opcode byte

const (
	OpObjectCreate    Opcode = 0x01
	OpPrnSet          Opcode = 0x02
	OpCrcGet          Opcode = 0x03
	OpObjectExecute   Opcode = 0x04
	OpObjectSelect    Opcode = 0x06
	OpMtuGet          Opcode = 0x07
	OpObjectWrite     Opcode = 0x08
	OpPing            Opcode = 0x09
	OpHardwareVersion Opcode = 0x0A
	OpFirmwareVersion Opcode = 0x0B
	OpAbort           Opcode = 0x0C

	opResponse Opcode = 0x60
)

// ObjectType selects which object kind a CREATE/SELECT request addresses.
type ObjectType byte

const (
	ObjectCommand ObjectType = 0x01
	ObjectData    ObjectType = 0x02
)

// Result is the third byte of every control-point response frame.
type Result byte

const (
	ResultInvalidCode           Result = 0x00
	ResultSuccess               Result = 0x01
	ResultOpCodeNotSupported    Result = 0x02
	ResultInvalidParameter      Result = 0x03
	ResultInsufficientResources Result = 0x04
	ResultInvalidObject         Result = 0x05
	ResultUnsupportedType       Result = 0x07
	ResultOperationNotPermitted Result = 0x08
	ResultOperationFailed       Result = 0x0A
	ResultExtError              Result = 0x0B
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultOpCodeNotSupported:
		return "opcode not supported"
	case ResultInvalidParameter:
		return "invalid parameter"
	case ResultInsufficientResources:
		return "insufficient resources"
	case ResultInvalidObject:
		return "invalid object"
	case ResultUnsupportedType:
		return "unsupported type"
	case ResultOperationNotPermitted:
		return "operation not permitted"
	case ResultOperationFailed:
		return "operation failed"
	case ResultExtError:
		return "extended error"
	default:
		return "invalid result code"
	}
}

// ExtError is carried as a fourth byte when Result is ResultExtError.
type ExtError byte

const (
	ExtErrorNoError             ExtError = 0x00
	ExtErrorInvalidErrorCode    ExtError = 0x01
	ExtErrorWrongCommandFormat  ExtError = 0x02
	ExtErrorUnknownCommand      ExtError = 0x03
	ExtErrorInitCommandInvalid  ExtError = 0x04
	ExtErrorFwVersionFailure    ExtError = 0x05
	ExtErrorHwVersionFailure    ExtError = 0x06
	ExtErrorSdVersionFailure    ExtError = 0x07
	ExtErrorSignatureMissing    ExtError = 0x08
	ExtErrorWrongHashType       ExtError = 0x09
	ExtErrorHashFailed          ExtError = 0x0A
	ExtErrorWrongSignatureType  ExtError = 0x0B
	ExtErrorVerificationFailed  ExtError = 0x0C
	ExtErrorInsufficientSpace   ExtError = 0x0D
)

func (e ExtError) String() string {
	switch e {
	case ExtErrorNoError:
		return "no error"
	case ExtErrorInvalidErrorCode:
		return "invalid error code"
	case ExtErrorWrongCommandFormat:
		return "wrong command format"
	case ExtErrorUnknownCommand:
		return "unknown command"
	case ExtErrorInitCommandInvalid:
		return "init command invalid"
	case ExtErrorFwVersionFailure:
		return "firmware version failure"
	case ExtErrorHwVersionFailure:
		return "hardware version failure"
	case ExtErrorSdVersionFailure:
		return "softdevice version failure"
	case ExtErrorSignatureMissing:
		return "signature missing"
	case ExtErrorWrongHashType:
		return "wrong hash type"
	case ExtErrorHashFailed:
		return "hash failed"
	case ExtErrorWrongSignatureType:
		return "wrong signature type"
	case ExtErrorVerificationFailed:
		return "verification failed"
	case ExtErrorInsufficientSpace:
		return "insufficient space"
	default:
		return "unknown extended error"
	}
}

// BLE UUIDs for the Nordic Secure DFU service and its characteristics.
const (
	ServiceUUID            = "0000fe59-0000-1000-8000-00805f9b34fb"
	ControlPointUUID       = "8ec90001-f315-4f60-9fb8-838830daea50"
	PacketDataUUID         = "8ec90002-f315-4f60-9fb8-838830daea50"
	ButtonlessUnbondedUUID = "8ec90003-f315-4f60-9fb8-838830daea50"
	ButtonlessBondedUUID   = "8ec90004-f315-4f60-9fb8-838830daea50"
)

// ATTMtuDefault is the default ATT_MTU before any MTU negotiation.
const ATTMtuDefault = 23

// DefaultPacketSize is ATTMtuDefault minus the 3-byte ATT write-request header.
const DefaultPacketSize = ATTMtuDefault - 3

// RetriesNumber is the total number of CREATE+stream+EXECUTE attempts made
// for a single object; a ValidationError moves on to the next attempt.
const RetriesNumber = 3

// DefaultControlPointTimeout bounds how long the router waits for a
// notification after writing a control-point request.
const DefaultControlPointTimeout = 6 * time.Second

// DefaultConnectTimeout is the default GATT connection timeout used by
// library-level callers (the CLI front-end applies its own, longer default).
const DefaultConnectTimeout = 10 * time.Second
