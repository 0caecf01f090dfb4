// Package deviceflag registers the flags which select the device and
// partition fatfmt operates on.
package deviceflag

import (
	"os"

	"github.com/spf13/pflag"
)

var (
	device = os.Getenv("FATFMT_DEVICE")

	partition = 1
)

func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVarP(&device,
		"device",
		"d",
		device,
		`block device or image file (default $FATFMT_DEVICE)`)

	fs.IntVarP(&partition,
		"partition",
		"p",
		partition,
		`partition number: 1-4 for MBR, the GPT entry number on GPT disks, 0 for a volume without partition table`)
}

func SetDevice(d string) {
	device = d
}

func SetPartition(p int) {
	partition = p
}

func Device() string {
	return device
}

func Partition() int {
	return partition
}
