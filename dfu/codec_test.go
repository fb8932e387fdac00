package dfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeObjectCreate(t *testing.T) {
	frame := encodeObjectCreate(ObjectData, 0x01020304)
	assert.Equal(t, []byte{byte(ObjectData), 0x04, 0x03, 0x02, 0x01}, frame)
}

func TestEncodePrnSet(t *testing.T) {
	assert.Equal(t, []byte{0x0A, 0x00}, encodePrnSet(10))
}

func TestEncodeRequest(t *testing.T) {
	frame := encodeRequest(OpObjectSelect, []byte{0x01})
	assert.Equal(t, []byte{byte(OpObjectSelect), 0x01}, frame)
}

func TestDecodeResponseHeaderSuccess(t *testing.T) {
	frame := []byte{byte(opResponse), byte(OpCrcGet), byte(ResultSuccess), 0xAA, 0xBB}
	payload, err := decodeResponseHeader(OpCrcGet, frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, payload)
}

func TestDecodeResponseHeaderShortFrame(t *testing.T) {
	_, err := decodeResponseHeader(OpCrcGet, []byte{byte(opResponse), byte(OpCrcGet)})
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeResponseHeaderBadMarker(t *testing.T) {
	frame := []byte{0x00, byte(OpCrcGet), byte(ResultSuccess)}
	_, err := decodeResponseHeader(OpCrcGet, frame)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeResponseHeaderMismatchedOpcode(t *testing.T) {
	frame := []byte{byte(opResponse), byte(OpObjectCreate), byte(ResultSuccess)}
	_, err := decodeResponseHeader(OpCrcGet, frame)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeResponseHeaderDeviceError(t *testing.T) {
	frame := []byte{byte(opResponse), byte(OpObjectCreate), byte(ResultInvalidObject)}
	_, err := decodeResponseHeader(OpObjectCreate, frame)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ResultInvalidObject, devErr.Code)
}

func TestDecodeResponseHeaderExtError(t *testing.T) {
	frame := []byte{byte(opResponse), byte(OpObjectCreate), byte(ResultExtError), byte(ExtErrorHashFailed)}
	_, err := decodeResponseHeader(OpObjectCreate, frame)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ResultExtError, devErr.Code)
	assert.Equal(t, ExtErrorHashFailed, devErr.Ext)
}

func TestDecodeResponseHeaderUnknownResult(t *testing.T) {
	frame := []byte{byte(opResponse), byte(OpObjectCreate), 0x7F}
	_, err := decodeResponseHeader(OpObjectCreate, frame)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeSelectResponseRoundTrip(t *testing.T) {
	payload := []byte{0x10, 0, 0, 0, 0x20, 0, 0, 0, 0x30, 0, 0, 0}
	resp, err := decodeSelectResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, SelectResponse{MaxSize: 0x10, Offset: 0x20, Crc32: 0x30}, resp)
}

func TestDecodeChecksumResponseRoundTrip(t *testing.T) {
	payload := []byte{0x40, 0, 0, 0, 0x50, 0, 0, 0}
	resp, err := decodeChecksumResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, ChecksumResponse{Offset: 0x40, Crc32: 0x50}, resp)
}
