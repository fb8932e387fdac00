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

package cmd

import (
	"time"

	"github.com/dfutools/nrf-dfu/ble"
	"github.com/dfutools/nrf-dfu/dfu"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const reconnectAttempts = 5
const reconnectDelay = time.Second

// connectInDFUMode connects to address and, if the device is still running
// its application rather than the DFU bootloader, reboots it into DFU mode
// via the buttonless trigger and reconnects, retrying a bounded number of
// times. It mirrors the original tool's reconnect loop in its Update method.
func connectInDFUMode(client ble.Client, address string, connectTimeout time.Duration) (*dfu.Session, error) {
	session := dfu.NewSession(client, connectTimeout)

	if err := session.ConnectAddress(address); err != nil {
		return nil, errors.Wrap(err, "failed to connect to peripheral")
	}

	if session.InDFUMode() {
		return session, nil
	}

	jww.INFO.Println("DFU characteristics not found, attempting to reboot device into DFU mode.")
	newName, err := rebootIntoDFUMode(session)
	if err != nil {
		session.Disconnect()
		return nil, errors.Wrap(err, "failed to enter bootloader")
	}

	jww.INFO.Println("Reconnecting to peripheral.")
	for attempt := 1; ; attempt++ {
		if newName != "" {
			err = session.ConnectName(newName)
		} else {
			err = session.ConnectAddress(address)
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to reconnect")
		}
		if session.InDFUMode() {
			jww.INFO.Printf("Connected to %s in DFU mode.\n", session.Peripheral().Addr())
			return session, nil
		}
		if attempt >= reconnectAttempts {
			session.Disconnect()
			return nil, errors.New("device did not advertise DFU characteristics after reboot")
		}
		session.Disconnect()
		time.Sleep(reconnectDelay)
	}
}

// rebootIntoDFUMode triggers the buttonless DFU service and returns the new
// advertising name to reconnect by, if the unbonded variant was used.
func rebootIntoDFUMode(session *dfu.Session) (string, error) {
	characteristic, addressChange := session.ButtonlessCharacteristic()
	if characteristic == nil {
		return "", errors.New("no DFU characteristics and no buttonless trigger found")
	}

	trigger := dfu.NewButtonlessTrigger(characteristic, 0)
	return trigger.Trigger(addressChange)
}
