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
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// SelectResponse is the success payload of an OBJECT_SELECT request.
type SelectResponse struct {
	MaxSize uint32
	Offset  uint32
	Crc32   uint32
}

// ChecksumResponse is the success payload of a CRC_GET request.
type ChecksumResponse struct {
	Offset uint32
	Crc32  uint32
}

// encodeObjectCreate packs an OBJECT_CREATE request body: object_type then
// the little-endian 32-bit size.
func encodeObjectCreate(objType ObjectType, size uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(objType)
	binary.LittleEndian.PutUint32(buf[1:], size)
	return buf
}

// encodePrnSet packs a PRN_SET request body: a little-endian 16-bit count.
func encodePrnSet(prn uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, prn)
	return buf
}

// encodeObjectSelect packs an OBJECT_SELECT request body: the object_type byte.
func encodeObjectSelect(objType ObjectType) []byte {
	return []byte{byte(objType)}
}

// encodePing packs a PING request body: the single id byte.
func encodePing(id byte) []byte {
	return []byte{id}
}

// encodeRequest prepends the opcode to its argument bytes, producing the
// full frame written to the control-point characteristic.
func encodeRequest(opcode Opcode, args []byte) []byte {
	frame := make([]byte, 0, 1+len(args))
	frame = append(frame, byte(opcode))
	frame = append(frame, args...)
	return frame
}

// decodeResponseHeader validates and strips the fixed three-byte response
// header (marker, echoed opcode, result code), returning the trailing
// payload. It fails with ProtocolError on a short or malformed frame, and
// returns *DeviceError when the result code signals a device-side failure.
func decodeResponseHeader(wantOpcode Opcode, frame []byte) ([]byte, error) {
	if len(frame) < 3 {
		return nil, &ProtocolError{Reason: "response frame shorter than header"}
	}

	marker := Opcode(frame[0])
	echoedOpcode := Opcode(frame[1])
	result := Result(frame[2])

	if marker != opResponse {
		return nil, &ProtocolError{Reason: "response marker is not 0x60"}
	}
	if echoedOpcode != wantOpcode {
		return nil, &ProtocolError{Reason: "response echoes a different opcode than the outstanding request"}
	}

	switch result {
	case ResultSuccess:
		return frame[3:], nil
	case ResultExtError:
		ext := ExtError(0)
		if len(frame) > 3 {
			ext = ExtError(frame[3])
		}
		return nil, &DeviceError{Opcode: wantOpcode, Code: result, Ext: ext}
	case ResultOpCodeNotSupported, ResultInvalidParameter, ResultInsufficientResources,
		ResultInvalidObject, ResultUnsupportedType, ResultOperationNotPermitted, ResultOperationFailed:
		return nil, &DeviceError{Opcode: wantOpcode, Code: result}
	default:
		return nil, &ProtocolError{Reason: "unknown result code in response"}
	}
}

// decodeSelectResponse unpacks a validated OBJECT_SELECT success payload.
func decodeSelectResponse(payload []byte) (SelectResponse, error) {
	var resp SelectResponse
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &resp); err != nil {
		return resp, errors.Wrap(err, "failed to unpack select response payload")
	}
	return resp, nil
}

// decodeChecksumResponse unpacks a validated CRC_GET success payload.
func decodeChecksumResponse(payload []byte) (ChecksumResponse, error) {
	var resp ChecksumResponse
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &resp); err != nil {
		return resp, errors.Wrap(err, "failed to unpack crc get response payload")
	}
	return resp, nil
}
