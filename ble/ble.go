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

// Package ble is a small GATT abstraction: connect/disconnect, characteristic
// discovery, read/write and subscribe. The dfu package depends only on this
// interface, never on a concrete BLE stack.
package ble

import (
	"time"
)

// AdvertisementHandler is invoked once per advertisement seen during a scan.
type AdvertisementHandler func(adv Advertisement)

// Advertisement is the subset of an advertisement report a scanner cares
// about: enough to let a caller filter candidate DFU peripherals.
type Advertisement struct {
	Addr     string
	Name     string
	Services []string
}

// Client is the entry point: dial a peripheral by name or address, or scan.
type Client interface {
	ConnectName(name string, timeout time.Duration) (Peripheral, error)
	ConnectAddress(address string, timeout time.Duration) (Peripheral, error)
	Scan(duration time.Duration, handler AdvertisementHandler) error
}

// Peripheral is a connected device: its services and characteristics, and
// the raw read/write/subscribe operations against them.
type Peripheral interface {
	Addr() string

	Disconnect() error

	FindService(uuid string) Service
	FindCharacteristic(uuid string) Characteristic

	WriteCharacteristic(uuid string, data []byte, noresp bool) error
	Subscribe(uuid string, indication bool, f func([]byte)) error
	Unsubscribe(uuid string, indication bool) error
}

// Service is one GATT service on a connected peripheral.
type Service interface {
	Uuid() string
	FindCharacteristic(uuid string) Characteristic
}

// Characteristic is one GATT characteristic: the unit the dfu package's
// Transport writes to and subscribes on.
type Characteristic interface {
	Uuid() string

	WriteCharacteristic(data []byte, noresp bool) error
	Subscribe(indication bool, f func([]byte)) error
	Unsubscribe(indication bool) error
}
