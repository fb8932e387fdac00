package dfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCharacteristic is a minimal ble.Characteristic that answers every
// write with a scripted buttonless response on whichever subscription
// (indication or notification) is currently active, mirroring how a real
// bonded/unbonded buttonless characteristic answers on either.
type stubCharacteristic struct {
	indicationHandler func([]byte)
	notifyHandler     func([]byte)
	writes            [][]byte
	result            Result
}

func (c *stubCharacteristic) Uuid() string { return ButtonlessBondedUUID }

func (c *stubCharacteristic) WriteCharacteristic(data []byte, noresp bool) error {
	c.writes = append(c.writes, data)
	response := []byte{buttonlessResponseMarker, data[0], byte(c.result)}
	if c.indicationHandler != nil {
		c.indicationHandler(response)
	} else if c.notifyHandler != nil {
		c.notifyHandler(response)
	}
	return nil
}

func (c *stubCharacteristic) Subscribe(indication bool, f func([]byte)) error {
	if indication {
		c.indicationHandler = f
	} else {
		c.notifyHandler = f
	}
	return nil
}

func (c *stubCharacteristic) Unsubscribe(indication bool) error {
	if indication {
		c.indicationHandler = nil
	} else {
		c.notifyHandler = nil
	}
	return nil
}

func TestButtonlessTriggerBondedEntersBootloader(t *testing.T) {
	characteristic := &stubCharacteristic{result: ResultSuccess}
	trigger := NewButtonlessTrigger(characteristic, 0)

	name, err := trigger.Trigger(false)
	require.NoError(t, err)
	assert.Empty(t, name)
	require.Len(t, characteristic.writes, 1)
	assert.Equal(t, byte(buttonlessOpEnterBootloader), characteristic.writes[0][0])
}

func TestButtonlessTriggerUnbondedRenamesFirst(t *testing.T) {
	characteristic := &stubCharacteristic{result: ResultSuccess}
	trigger := NewButtonlessTrigger(characteristic, 0)

	name, err := trigger.Trigger(true)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	require.Len(t, characteristic.writes, 2)
	assert.Equal(t, byte(buttonlessOpSetName), characteristic.writes[0][0])
	assert.Equal(t, byte(buttonlessOpEnterBootloader), characteristic.writes[1][0])
}

func TestButtonlessTriggerDeviceRejection(t *testing.T) {
	characteristic := &stubCharacteristic{result: ResultOperationNotPermitted}
	trigger := NewButtonlessTrigger(characteristic, 0)

	_, err := trigger.Trigger(false)
	require.Error(t, err)
	var devErr *DeviceError
	assert.ErrorAs(t, err, &devErr)
}
