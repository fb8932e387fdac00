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

package ble

import (
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// DeviceInitFunc constructs the platform-specific ble.Device backing a Client.
type DeviceInitFunc func() (ble.Device, error)

type bleClient struct {
	device ble.Device
}

type blePeripheral struct {
	address string
	client  ble.Client
	profile *ble.Profile
}

type bleService struct {
	client  ble.Client
	service *ble.Service
}

type bleCharacteristic struct {
	client         ble.Client
	characteristic *ble.Characteristic
}

var currentDevice ble.Device

// NewGoBleClient builds a Client on top of github.com/go-ble/ble, lazily
// creating the platform device via init the first time it's needed.
func NewGoBleClient(init DeviceInitFunc) (Client, error) {
	if currentDevice == nil {
		device, err := init()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create new BLE device")
		}
		ble.SetDefaultDevice(device)
		currentDevice = device
	}

	return &bleClient{device: currentDevice}, nil
}

func (b *bleClient) ConnectName(name string, timeout time.Duration) (Peripheral, error) {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), timeout))

	client, err := ble.Connect(ctx, func(a ble.Advertisement) bool {
		return strings.EqualFold(a.LocalName(), name)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to device")
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover device profiles")
	}

	return &blePeripheral{
		address: client.Addr().String(),
		client:  client,
		profile: profile,
	}, nil
}

func (b *bleClient) ConnectAddress(address string, timeout time.Duration) (Peripheral, error) {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), timeout))

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to device")
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover device profiles")
	}

	return &blePeripheral{
		address: address,
		client:  client,
		profile: profile,
	}, nil
}

func (b *bleClient) Scan(duration time.Duration, handler AdvertisementHandler) error {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), duration))

	err := ble.Scan(ctx, false, b.handleAdvertisement(handler), nil)

	switch errors.Cause(err) {
	case context.DeadlineExceeded, context.Canceled:
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to start BLE scan")
	}

	return nil
}

func (b *bleClient) handleAdvertisement(handler AdvertisementHandler) ble.AdvHandler {
	return func(a ble.Advertisement) {
		services := make([]string, 0, len(a.Services()))
		for _, s := range a.Services() {
			services = append(services, s.String())
		}
		handler(Advertisement{Name: a.LocalName(), Addr: a.Addr().String(), Services: services})
	}
}

func (p *blePeripheral) Addr() string {
	return p.address
}

func (p *blePeripheral) Disconnect() error {
	return p.client.CancelConnection()
}

func (p *blePeripheral) FindService(uuid string) Service {
	bleUUID, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	if s := p.profile.FindService(ble.NewService(bleUUID)); s != nil {
		return &bleService{client: p.client, service: s}
	}
	return nil
}

func (p *blePeripheral) FindCharacteristic(uuid string) Characteristic {
	bleUUID, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	if c := p.profile.FindCharacteristic(ble.NewCharacteristic(bleUUID)); c != nil {
		return &bleCharacteristic{client: p.client, characteristic: c}
	}
	return nil
}

func (p *blePeripheral) WriteCharacteristic(uuid string, data []byte, noresp bool) error {
	c := p.FindCharacteristic(uuid)
	if c == nil {
		return errors.Errorf("characteristic %s not found", uuid)
	}
	return c.WriteCharacteristic(data, noresp)
}

func (p *blePeripheral) Subscribe(uuid string, indication bool, f func([]byte)) error {
	c := p.FindCharacteristic(uuid)
	if c == nil {
		return errors.Errorf("characteristic %s not found", uuid)
	}
	return c.Subscribe(indication, f)
}

func (p *blePeripheral) Unsubscribe(uuid string, indication bool) error {
	c := p.FindCharacteristic(uuid)
	if c == nil {
		return errors.Errorf("characteristic %s not found", uuid)
	}
	return c.Unsubscribe(indication)
}

func (s *bleService) Uuid() string {
	return s.service.UUID.String()
}

func (s *bleService) FindCharacteristic(uuid string) Characteristic {
	bleUUID, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	for _, c := range s.service.Characteristics {
		if c.UUID.Equal(bleUUID) {
			return &bleCharacteristic{client: s.client, characteristic: c}
		}
	}
	return nil
}

func (c *bleCharacteristic) Uuid() string {
	return c.characteristic.UUID.String()
}

func (c *bleCharacteristic) WriteCharacteristic(data []byte, noresp bool) error {
	if err := c.client.WriteCharacteristic(c.characteristic, data, noresp); err != nil {
		return errors.Wrap(err, "failed to write to BLE characteristic")
	}
	return nil
}

func (c *bleCharacteristic) Subscribe(indication bool, f func([]byte)) error {
	if err := c.client.Subscribe(c.characteristic, indication, f); err != nil {
		return errors.Wrap(err, "failed to subscribe to BLE characteristic value changes")
	}
	return nil
}

func (c *bleCharacteristic) Unsubscribe(indication bool) error {
	if err := c.client.Unsubscribe(c.characteristic, indication); err != nil {
		return errors.Wrap(err, "failed to unsubscribe from BLE characteristic value changes")
	}
	return nil
}
