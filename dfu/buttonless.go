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
	"math/rand"
	"time"

	"github.com/dfutools/nrf-dfu/ble"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	buttonlessOpSetName         = 0x02
	buttonlessOpEnterBootloader = 0x01
	buttonlessResponseMarker    = 0x20
)

// ButtonlessTrigger reboots a peripheral still running its application into
// DFU mode via the Buttonless DFU service, when the control-point and
// packet-data characteristics are not yet present. This is a connection-setup
// concern, kept separate from the object transfer engine proper.
type ButtonlessTrigger struct {
	characteristic ble.Characteristic
	timeout        time.Duration
	response       chan []byte
}

// NewButtonlessTrigger wraps the located buttonless characteristic.
func NewButtonlessTrigger(characteristic ble.Characteristic, timeout time.Duration) *ButtonlessTrigger {
	if timeout <= 0 {
		timeout = DefaultControlPointTimeout
	}
	return &ButtonlessTrigger{characteristic: characteristic, timeout: timeout}
}

// Trigger reboots the device into DFU mode. When rename is true (the
// unbonded buttonless characteristic requires an address change on
// reconnect) it first assigns the device a fresh, randomly generated
// advertising name and returns it so the caller can reconnect by name.
func (b *ButtonlessTrigger) Trigger(rename bool) (newName string, err error) {
	b.response = make(chan []byte, 1)

	if err := b.characteristic.Subscribe(true, b.deliver); err != nil {
		return "", errors.Wrap(err, "failed to subscribe to buttonless indications")
	}
	if err := b.characteristic.Subscribe(false, b.deliver); err != nil {
		return "", errors.Wrap(err, "failed to subscribe to buttonless notifications")
	}

	rebooted := false
	defer func() {
		if !rebooted {
			_ = b.characteristic.Unsubscribe(true)
			_ = b.characteristic.Unsubscribe(false)
		}
	}()

	if rename {
		newName = generateDeviceName()
		jww.INFO.Printf("dfu: changing bootloader advertising name to '%s'", newName)
		if err := b.sendSetName(newName); err != nil {
			return "", errors.Wrap(err, "failed to set bootloader advertising name")
		}
	}

	if err := b.sendEnterBootloader(); err != nil {
		return "", errors.Wrap(err, "failed to enter bootloader")
	}
	rebooted = true

	return newName, nil
}

func (b *ButtonlessTrigger) deliver(data []byte) {
	select {
	case b.response <- data:
	default:
		jww.WARN.Printf("dfu: discarding unexpected buttonless notification: % x", data)
	}
}

func (b *ButtonlessTrigger) send(request []byte) error {
	if err := b.characteristic.WriteCharacteristic(request, false); err != nil {
		return errors.Wrap(err, "failed to write to buttonless characteristic")
	}

	select {
	case response := <-b.response:
		if len(response) < 3 {
			return &ProtocolError{Reason: "buttonless response shorter than header"}
		}
		if response[0] != buttonlessResponseMarker {
			return &ProtocolError{Reason: "buttonless response has an unexpected marker"}
		}
		if response[1] != request[0] {
			return &ProtocolError{Reason: "buttonless response echoes a different opcode"}
		}
		if Result(response[2]) != ResultSuccess {
			return &DeviceError{Code: Result(response[2])}
		}
		return nil
	case <-time.After(b.timeout):
		return &TimeoutError{}
	}
}

func (b *ButtonlessTrigger) sendSetName(name string) error {
	request := make([]byte, 0, 2+len(name))
	request = append(request, buttonlessOpSetName, byte(len(name)))
	request = append(request, name...)
	return b.send(request)
}

func (b *ButtonlessTrigger) sendEnterBootloader() error {
	return b.send([]byte{buttonlessOpEnterBootloader})
}

const deviceNameLetters = "abcdefghijklmnopqrstuvwxyz"

func generateDeviceName() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = deviceNameLetters[rand.Intn(len(deviceNameLetters))]
	}
	return "Dfu" + string(b)
}
