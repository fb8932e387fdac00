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

	jww "github.com/spf13/jwalterweatherman"
)

// SendInitPacket runs the init-packet phase: SELECT(COMMAND), an attempt to
// recover a partially-uploaded init packet from the device's reported
// (offset, crc), and otherwise up to RetriesNumber fresh CREATE+stream+EXECUTE
// attempts.
func (e *Engine) SendInitPacket(init []byte) error {
	sel, err := e.selectObject(ObjectCommand)
	if err != nil {
		return err
	}
	jww.DEBUG.Printf("dfu: %s command max_size=%d offset=%d crc=0x%08x", stateSelected, sel.MaxSize, sel.Offset, sel.Crc32)

	if uint32(len(init)) > sel.MaxSize {
		return &PackageTooLargeError{Size: uint32(len(init)), MaxSize: sel.MaxSize}
	}

	recovered, err := e.tryRecoverInitPacket(init, sel)
	if err != nil {
		return err
	}
	if recovered {
		e.reportProgress(int64(len(init)), int64(len(init)))
		return nil
	}

	for attempt := 0; attempt < RetriesNumber; attempt++ {
		if err := e.createObject(ObjectCommand, uint32(len(init))); err != nil {
			return err
		}
		jww.DEBUG.Printf("dfu: %s command", stateCreated)

		_, _, err := e.streamData(init, 0, 0)
		if _, ok := err.(*ValidationError); ok {
			jww.WARN.Printf("dfu: init packet checkpoint failed on attempt %d/%d: %v", attempt+1, RetriesNumber, err)
			continue
		}
		if err != nil {
			return err
		}

		if err := e.execute(); err != nil {
			if _, ok := err.(*ValidationError); ok {
				continue
			}
			return err
		}
		jww.DEBUG.Printf("dfu: %s command", stateExecuted)

		e.reportProgress(int64(len(init)), int64(len(init)))
		return nil
	}

	return &InitPacketFailedError{}
}

// tryRecoverInitPacket implements the init-packet recovery path: if the
// device's reported offset/crc agree with a prefix of init, the remainder
// (if any) is streamed and the object executed without a fresh CREATE.
func (e *Engine) tryRecoverInitPacket(init []byte, sel SelectResponse) (bool, error) {
	if sel.Offset == 0 || sel.Offset > uint32(len(init)) {
		return false, nil
	}

	expected := crc32.ChecksumIEEE(init[:sel.Offset])
	if expected != sel.Crc32 {
		return false, nil
	}

	offset, crc := sel.Offset, sel.Crc32
	if offset < uint32(len(init)) {
		var err error
		crc, offset, err = e.streamData(init[offset:], crc, offset)
		if _, ok := err.(*ValidationError); ok {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}

	if err := e.execute(); err != nil {
		return false, err
	}
	jww.DEBUG.Printf("dfu: %s command (recovered)", stateExecuted)
	return true, nil
}

// SendFirmware runs the firmware phase: SELECT(DATA), an attempt to recover
// (or rewind past a corrupted tail of) a partially-uploaded firmware image,
// then the main per-page CREATE+stream+EXECUTE loop with retry.
func (e *Engine) SendFirmware(firmware []byte) error {
	sel, err := e.selectObject(ObjectData)
	if err != nil {
		return err
	}
	jww.DEBUG.Printf("dfu: %s data max_size=%d offset=%d crc=0x%08x", stateSelected, sel.MaxSize, sel.Offset, sel.Crc32)

	offset, crc, maxSize := sel.Offset, sel.Crc32, sel.MaxSize
	total := int64(len(firmware))

	if offset, crc, err = e.recoverFirmwareCursor(firmware, offset, crc, maxSize); err != nil {
		return err
	}

	for i := offset; i < uint32(len(firmware)); i += maxSize {
		end := i + maxSize
		if end > uint32(len(firmware)) {
			end = uint32(len(firmware))
		}
		data := firmware[i:end]

		succeeded := false
		for attempt := 0; attempt < RetriesNumber; attempt++ {
			if err := e.createObject(ObjectData, uint32(len(data))); err != nil {
				return err
			}
			jww.DEBUG.Printf("dfu: %s data offset=%d", stateCreated, i)

			newCrc, newOffset, err := e.streamData(data, crc, i)
			if _, ok := err.(*ValidationError); ok {
				jww.WARN.Printf("dfu: firmware checkpoint failed on attempt %d/%d at offset %d: %v", attempt+1, RetriesNumber, i, err)
				continue
			}
			if err != nil {
				return err
			}

			if err := e.execute(); err != nil {
				if _, ok := err.(*ValidationError); ok {
					continue
				}
				return err
			}
			jww.DEBUG.Printf("dfu: %s data offset=%d", stateExecuted, newOffset)

			crc = newCrc
			succeeded = true
			break
		}

		if !succeeded {
			return &FirmwareFailedError{Offset: i}
		}

		e.reportProgress(int64(end), total)
	}

	return nil
}

// recoverFirmwareCursor implements the firmware recovery path. It returns
// the (offset, crc) the main loop should resume from. On a corrupted tail it
// rewinds to the start of the partial page, or by one whole page when the
// offset is page-aligned; on a clean partial page it streams the rest
// of the page and executes; if remainder == 0 and the CRC already matches it
// reports the cursor unchanged and leaves EXECUTE to the main loop's next
// object.
func (e *Engine) recoverFirmwareCursor(firmware []byte, offset, crc, maxSize uint32) (uint32, uint32, error) {
	if offset == 0 {
		return offset, crc, nil
	}

	expected := crc32.ChecksumIEEE(firmware[:offset])
	remainder := offset % maxSize

	if expected != crc {
		if remainder != 0 {
			offset -= remainder
		} else {
			offset -= maxSize
		}
		crc = crc32.ChecksumIEEE(firmware[:offset])
		jww.WARN.Printf("dfu: firmware tail corrupted, rewound to offset=%d crc=0x%08x", offset, crc)
		return offset, crc, nil
	}

	if remainder != 0 && offset != uint32(len(firmware)) {
		end := offset + maxSize - remainder
		if end > uint32(len(firmware)) {
			end = uint32(len(firmware))
		}
		toSend := firmware[offset:end]

		newCrc, newOffset, err := e.streamData(toSend, crc, offset)
		if _, ok := err.(*ValidationError); ok {
			offset -= remainder
			crc = crc32.ChecksumIEEE(firmware[:offset])
			return offset, crc, nil
		}
		if err != nil {
			return offset, crc, err
		}

		if err := e.execute(); err != nil {
			return offset, crc, err
		}
		offset, crc = newOffset, newCrc
		e.reportProgress(int64(offset), int64(len(firmware)))
		jww.INFO.Printf("dfu: progress at %d", offset)
	}

	return offset, crc, nil
}
