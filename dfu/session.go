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

	"github.com/dfutools/nrf-dfu/ble"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Session owns one GATT connection for the lifetime of an upgrade: connect,
// find the DFU service and its characteristics (or the buttonless trigger
// characteristic if the device is still running its application), and
// disconnect. It is the out-of-scope GATT transport's entry point; the
// engine itself never connects or discovers services.
type Session struct {
	client         ble.Client
	connectTimeout time.Duration

	peripheral ble.Peripheral
	service    ble.Service
}

// NewSession wraps a BLE client for one upgrade session.
func NewSession(client ble.Client, connectTimeout time.Duration) *Session {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Session{client: client, connectTimeout: connectTimeout}
}

// ConnectAddress connects to a peripheral by BLE address and locates the
// Nordic DFU service, if advertised.
func (s *Session) ConnectAddress(address string) error {
	peripheral, err := s.client.ConnectAddress(address, s.connectTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	return s.onConnected(peripheral)
}

// ConnectName connects to a peripheral by advertised local name, used after
// a buttonless reboot assigns a fresh, randomly generated name.
func (s *Session) ConnectName(name string) error {
	peripheral, err := s.client.ConnectName(name, s.connectTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	return s.onConnected(peripheral)
}

func (s *Session) onConnected(peripheral ble.Peripheral) error {
	s.peripheral = peripheral
	s.service = peripheral.FindService(ServiceUUID)
	return nil
}

// Peripheral returns the connected peripheral, or nil before Connect* succeeds.
func (s *Session) Peripheral() ble.Peripheral {
	return s.peripheral
}

// InDFUMode reports whether the connected peripheral is already advertising
// the DFU control-point and packet-data characteristics.
func (s *Session) InDFUMode() bool {
	if s.service == nil {
		return false
	}
	return s.service.FindCharacteristic(ControlPointUUID) != nil &&
		s.service.FindCharacteristic(PacketDataUUID) != nil
}

// Transport builds the Engine's Transport out of the currently connected
// peripheral. InDFUMode must be true.
func (s *Session) Transport(packetSize int) (Transport, error) {
	return NewBLETransport(s.peripheral, packetSize)
}

// ButtonlessCharacteristic locates the buttonless DFU trigger characteristic,
// preferring the bonded variant, and reports whether it requires an
// address/name change on reconnect (the unbonded variant does).
func (s *Session) ButtonlessCharacteristic() (characteristic ble.Characteristic, addressChange bool) {
	if s.service == nil {
		return nil, false
	}
	if c := s.service.FindCharacteristic(ButtonlessBondedUUID); c != nil {
		return c, false
	}
	if c := s.service.FindCharacteristic(ButtonlessUnbondedUUID); c != nil {
		return c, true
	}
	return nil, false
}

// Disconnect tears down the GATT connection, if any.
func (s *Session) Disconnect() {
	if s.peripheral == nil {
		return
	}
	peripheral := s.peripheral
	s.peripheral = nil
	s.service = nil
	if err := peripheral.Disconnect(); err != nil {
		jww.WARN.Printf("dfu: disconnect failed: %v", err)
	}
}
