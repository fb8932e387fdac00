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
	"github.com/dfutools/nrf-dfu/internal/firmware"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gopkg.in/cheggaaa/pb.v2"
)

type dfuCommand struct {
	*baseCommand

	timeout          time.Duration
	address          string
	firmwareFilename string
	prn              uint16
}

func newDfuCommand() *dfuCommand {
	c := &dfuCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "dfu",
		Short: "Perform device firmware upgrade",
		Args:  cobra.NoArgs,
		Long: `This command can be used to perform a firmware upgrade of an nRF51 or nRF52
device. If the device supports the Buttonless DFU service, this service will
be used to first reboot the device into DFU mode.`,
		Example: `nrf-dfu dfu --address 4b668b2e16e41429fca7af1b0dc50644 --firmware FW.zip
nrf-dfu dfu --address 4b668b2e16e41429fca7af1b0dc50644 --firmware FW.zip --timeout=20s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDfu()
		},
	})

	c.cmd.Flags().DurationVarP(&c.timeout, "timeout", "t", 30*time.Second, "Timeout for connecting to device")
	c.cmd.Flags().StringVarP(&c.firmwareFilename, "firmware", "f", "", "Filename of the firmware archive")
	c.cmd.Flags().StringVarP(&c.address, "address", "a", "", "Address of device to be upgraded")
	c.cmd.Flags().Uint16Var(&c.prn, "prn", 0, "Packets per CRC checkpoint (0 disables mid-stream checkpoints)")
	return c
}

func (c *dfuCommand) runDfu() error {
	if c.address == "" {
		return errors.New("No address specified. Use --address to specify device address.")
	}
	if c.firmwareFilename == "" {
		return errors.New("No firmware filename specified. Use --firmware to specify firmware archive filename.")
	}

	firmwareFilename, err := homedir.Expand(c.firmwareFilename)
	if err != nil {
		return errors.Wrap(err, "failed to resolve firmware archive path")
	}

	jww.INFO.Printf("Upgrading firmware of device '%s' with '%s'\n", c.address, firmwareFilename)

	pkg, cleanup, err := firmware.Load(firmwareFilename)
	if err != nil {
		return errors.Wrap(err, "failed to load firmware package")
	}
	defer cleanup()

	bleClient, err := ble.NewClient()
	if err != nil {
		return errors.Wrap(err, "failed to create new BLE client")
	}

	session, err := connectInDFUMode(bleClient, c.address, c.timeout)
	if err != nil {
		return errors.Wrap(err, "failed to connect to peripheral")
	}
	defer session.Disconnect()

	transport, err := session.Transport(dfu.DefaultPacketSize)
	if err != nil {
		return errors.Wrap(err, "failed to set up DFU transport")
	}

	engine, err := dfu.NewEngine(transport, dfu.DefaultControlPointTimeout, c.prn)
	if err != nil {
		return errors.Wrap(err, "failed to initialize DFU engine")
	}
	defer engine.Close()

	var bar *pb.ProgressBar
	orchestrator := dfu.NewOrchestrator(engine, func(sent, total int64) {
		if bar == nil {
			bar = pb.ProgressBarTemplate(`{{ white "DFU:" }} {{bar . | green}} {{speed . "%s byte/s" | white }}`).Start64(total)
		}
		bar.SetCurrent(sent)
	})

	jww.INFO.Println("Transferring firmware.")
	if err := orchestrator.Run(pkg); err != nil {
		return errors.Wrap(err, "failed to upgrade device firmware")
	}

	if bar != nil {
		bar.Finish()
	}

	return nil
}
