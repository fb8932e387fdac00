package firmware

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, members map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "firmware.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, data := range members {
		member, err := w.Create(name)
		require.NoError(t, err)
		_, err = member.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

func TestLoadManifestPackageInRoleOrder(t *testing.T) {
	manifest := `{
		"manifest": {
			"application": {"bin_file": "app.bin", "dat_file": "app.dat"},
			"softdevice": {"bin_file": "sd.bin", "dat_file": "sd.dat"}
		}
	}`
	path := writeArchive(t, map[string][]byte{
		"manifest.json": []byte(manifest),
		"app.bin":       []byte("application firmware"),
		"app.dat":       []byte("application init"),
		"sd.bin":        []byte("softdevice firmware"),
		"sd.dat":        []byte("softdevice init"),
	})

	pkg, cleanup, err := Load(path)
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, pkg.Images, 2)
	assert.Equal(t, RoleSoftDevice, pkg.Images[0].Role)
	assert.Equal(t, []byte("softdevice init"), pkg.Images[0].InitPacket)
	assert.Equal(t, []byte("softdevice firmware"), pkg.Images[0].Firmware)
	assert.Equal(t, RoleApplication, pkg.Images[1].Role)
	assert.Equal(t, []byte("application init"), pkg.Images[1].InitPacket)
	assert.Equal(t, []byte("application firmware"), pkg.Images[1].Firmware)

	assert.Equal(t, int64(len("softdevice init")+len("softdevice firmware")+
		len("application init")+len("application firmware")), pkg.TotalSize())
}

func TestLoadSuffixFallbackWithoutManifest(t *testing.T) {
	path := writeArchive(t, map[string][]byte{
		"firmware.bin": []byte("firmware bytes"),
		"firmware.dat": []byte("init bytes"),
	})

	pkg, cleanup, err := Load(path)
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, pkg.Images, 1)
	assert.Equal(t, RoleApplication, pkg.Images[0].Role)
	assert.Equal(t, []byte("init bytes"), pkg.Images[0].InitPacket)
	assert.Equal(t, []byte("firmware bytes"), pkg.Images[0].Firmware)
}

func TestLoadFailsWithoutDatBinPair(t *testing.T) {
	path := writeArchive(t, map[string][]byte{
		"readme.txt": []byte("not a firmware package"),
	})

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsOnEmptyManifest(t *testing.T) {
	path := writeArchive(t, map[string][]byte{
		"manifest.json": []byte(`{"manifest": {}}`),
	})

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsOnMissingArchive(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.zip"))
	require.Error(t, err)
}
