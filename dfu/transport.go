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
	"github.com/dfutools/nrf-dfu/ble"
	"github.com/pkg/errors"
)

// Transport is the capability the object transfer engine needs from the GATT
// layer: write to the two DFU characteristics and be notified of control-point
// responses. It deliberately knows nothing about the DFU wire format; the
// router and codec own that.
type Transport interface {
	WriteControlPoint(data []byte) error
	WriteDataPoint(data []byte) error
	SubscribeControlPoint(handler func([]byte)) error
	UnsubscribeControlPoint() error

	// PacketSize is the fragment size for data-point writes, derived from
	// the negotiated ATT MTU (DefaultPacketSize unless negotiated higher).
	PacketSize() int
}

// bleTransport adapts a connected ble.Peripheral already positioned on the
// DFU service to the Transport interface.
type bleTransport struct {
	control    ble.Characteristic
	packet     ble.Characteristic
	packetSize int
}

// NewBLETransport builds a Transport out of a peripheral that has already
// discovered the Nordic DFU service and its two characteristics.
func NewBLETransport(peripheral ble.Peripheral, packetSize int) (Transport, error) {
	service := peripheral.FindService(ServiceUUID)
	if service == nil {
		return nil, errors.New("DFU service not found on peripheral")
	}

	control := service.FindCharacteristic(ControlPointUUID)
	packet := service.FindCharacteristic(PacketDataUUID)
	if control == nil || packet == nil {
		return nil, errors.New("DFU control-point or packet-data characteristic not found")
	}

	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}

	return &bleTransport{control: control, packet: packet, packetSize: packetSize}, nil
}

func (t *bleTransport) WriteControlPoint(data []byte) error {
	if err := t.control.WriteCharacteristic(data, false); err != nil {
		return &TransportError{Cause: errors.Wrap(err, "failed to write to control-point characteristic")}
	}
	return nil
}

func (t *bleTransport) WriteDataPoint(data []byte) error {
	if err := t.packet.WriteCharacteristic(data, false); err != nil {
		return &TransportError{Cause: errors.Wrap(err, "failed to write to packet-data characteristic")}
	}
	return nil
}

func (t *bleTransport) SubscribeControlPoint(handler func([]byte)) error {
	if err := t.control.Subscribe(false, handler); err != nil {
		return &TransportError{Cause: errors.Wrap(err, "failed to subscribe to control-point notifications")}
	}
	return nil
}

func (t *bleTransport) UnsubscribeControlPoint() error {
	if err := t.control.Unsubscribe(false); err != nil {
		return &TransportError{Cause: errors.Wrap(err, "failed to unsubscribe from control-point notifications")}
	}
	return nil
}

func (t *bleTransport) PacketSize() int {
	return t.packetSize
}
