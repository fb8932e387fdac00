package dfu

import (
	"hash/crc32"
	"testing"
	"time"

	"github.com/dfutools/nrf-dfu/internal/firmware"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorSendsEveryImageInOrder(t *testing.T) {
	device := newFakeDevice(256, 64)
	transport := newDeviceTransport(device)
	engine, err := NewEngine(transport, time.Second, 0)
	require.NoError(t, err)

	softdeviceFw := make([]byte, 130)
	for i := range softdeviceFw {
		softdeviceFw[i] = byte(3 * i)
	}
	applicationFw := make([]byte, 90)
	for i := range applicationFw {
		applicationFw[i] = byte(5 * i)
	}

	pkg := &firmware.Package{Images: []firmware.Image{
		{Role: firmware.RoleSoftDevice, InitPacket: []byte("softdevice init"), Firmware: softdeviceFw},
		{Role: firmware.RoleApplication, InitPacket: []byte("application init"), Firmware: applicationFw},
	}}

	var lastSent, lastTotal int64
	orchestrator := NewOrchestrator(engine, func(sent, total int64) {
		require.GreaterOrEqual(t, sent, lastSent)
		lastSent, lastTotal = sent, total
	})

	require.NoError(t, orchestrator.Run(pkg))

	require.Equal(t, pkg.TotalSize(), lastSent)
	require.Equal(t, pkg.TotalSize(), lastTotal)

	// The last image's firmware is what the device ends up holding.
	committed := device.committed[ObjectData]
	require.Equal(t, uint32(len(applicationFw)), committed.offset)
	require.Equal(t, crc32.ChecksumIEEE(applicationFw), committed.crc32)
}

func TestOrchestratorAbortsOnFatalError(t *testing.T) {
	device := newFakeDevice(4, 64)
	transport := newDeviceTransport(device)
	engine, err := NewEngine(transport, time.Second, 0)
	require.NoError(t, err)

	pkg := &firmware.Package{Images: []firmware.Image{
		{Role: firmware.RoleApplication, InitPacket: []byte("too large for the device"), Firmware: make([]byte, 32)},
	}}

	err = NewOrchestrator(engine, nil).Run(pkg)
	var tooLarge *PackageTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Zero(t, transport.dataWrites)
}
