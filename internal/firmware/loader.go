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

package firmware

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// manifestEntry names the two members of the archive that make up one image.
type manifestEntry struct {
	DatFile string `json:"dat_file"`
	BinFile string `json:"bin_file"`
}

// manifestDocument is the "manifest.json" member of an nrfutil DFU package,
// naming up to one entry per role.
type manifestDocument struct {
	Manifest struct {
		Application          *manifestEntry `json:"application,omitempty"`
		Bootloader           *manifestEntry `json:"bootloader,omitempty"`
		Softdevice           *manifestEntry `json:"softdevice,omitempty"`
		SoftdeviceBootloader *manifestEntry `json:"softdevice_bootloader,omitempty"`
	} `json:"manifest"`
}

func (m *manifestDocument) entry(role Role) *manifestEntry {
	switch role {
	case RoleApplication:
		return m.Manifest.Application
	case RoleBootloader:
		return m.Manifest.Bootloader
	case RoleSoftDevice:
		return m.Manifest.Softdevice
	case RoleSoftDeviceBootloader:
		return m.Manifest.SoftdeviceBootloader
	default:
		return nil
	}
}

// Load unpacks a DFU package archive into a scoped temporary directory,
// reads every member it needs into memory, and returns the resulting
// Package. The returned cleanup func removes the temporary directory and
// must be called on every exit path (success, failure, or cancellation);
// it is not tied to finalization.
func Load(path string) (pkg *Package, cleanup func() error, err error) {
	zipReader, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open firmware package")
	}
	defer zipReader.Close()

	tempDir, err := os.MkdirTemp("", "nrf_dfu_")
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create scratch directory for firmware package")
	}
	cleanup = func() error {
		return os.RemoveAll(tempDir)
	}

	if err := extractAll(&zipReader.Reader, tempDir); err != nil {
		_ = cleanup()
		return nil, nil, errors.Wrap(err, "failed to extract firmware package")
	}

	pkg, err = buildPackage(tempDir)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	return pkg, cleanup, nil
}

func extractAll(reader *zip.Reader, destDir string) error {
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "failed to open archive member %s", f.Name)
		}

		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			rc.Close()
			return errors.Wrapf(err, "failed to create %s", destPath)
		}

		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()

		if copyErr != nil {
			return errors.Wrapf(copyErr, "failed to extract %s", f.Name)
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "failed to finish writing %s", destPath)
		}
	}
	return nil
}

func buildPackage(dir string) (*Package, error) {
	manifestPath := filepath.Join(dir, "manifest.json")
	if _, err := os.Stat(manifestPath); err == nil {
		return buildFromManifest(dir, manifestPath)
	}
	return buildFromSuffixes(dir)
}

func buildFromManifest(dir, manifestPath string) (*Package, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest.json")
	}

	var doc manifestDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest.json")
	}

	pkg := &Package{}
	for _, role := range roleOrder {
		entry := doc.entry(role)
		if entry == nil {
			continue
		}

		initPacket, err := os.ReadFile(filepath.Join(dir, filepath.Base(entry.DatFile)))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read init packet for %s", role)
		}
		firmwareBytes, err := os.ReadFile(filepath.Join(dir, filepath.Base(entry.BinFile)))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read firmware for %s", role)
		}

		pkg.Images = append(pkg.Images, Image{
			Role:       role,
			InitPacket: initPacket,
			Firmware:   firmwareBytes,
		})
	}

	if len(pkg.Images) == 0 {
		return nil, errors.New("manifest.json named no images")
	}

	return pkg, nil
}

// buildFromSuffixes is the fallback for hand-built archives with no
// manifest.json: it pairs the lone ".dat"/".bin" member by suffix, the way
// the original tool's readFirmwareArchive did before the manifest format was
// adopted. The resulting single image is tagged RoleApplication since no
// role is recoverable from file suffixes alone.
func buildFromSuffixes(dir string) (*Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list extracted firmware package")
	}

	var datFile, binFile string
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".dat"):
			datFile = e.Name()
		case strings.HasSuffix(e.Name(), ".bin"):
			binFile = e.Name()
		}
	}

	if datFile == "" || binFile == "" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return nil, errors.Errorf("firmware package has no manifest.json and no .dat/.bin pair (found: %v)", names)
	}

	initPacket, err := os.ReadFile(filepath.Join(dir, datFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read init packet")
	}
	firmwareBytes, err := os.ReadFile(filepath.Join(dir, binFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read firmware")
	}

	return &Package{Images: []Image{{
		Role:       RoleApplication,
		InitPacket: initPacket,
		Firmware:   firmwareBytes,
	}}}, nil
}
