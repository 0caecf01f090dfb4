// Package rootdev locates the block device from which the running system
// was booted, so that fatfmt can refuse to format it.
package rootdev

import (
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/gpt"
	"github.com/gokrazy/fatfmt/mbr"
)

var cmdlineFile = "/proc/cmdline"

// rootDeviceRe matches the root partition on the kernel command line. The
// first group is the block device, the second one the partition number.
var rootDeviceRe = regexp.MustCompile(`(?:^|\s)(?:root|ubd0)=(/dev/\S+?)p?(\d+)(?:\s|$)`)

var partUUIDRe = regexp.MustCompile(`(?:^|\s)root=PARTUUID=(\S+)(?:\s|$)`)

// mbrPartUUIDRe matches the SSSSSSSS-PP form Linux derives from the MBR
// disk signature and the partition number.
var mbrPartUUIDRe = regexp.MustCompile(`^([0-9a-fA-F]{8})-([0-9a-fA-F]{2})$`)

// ErrUnknown is returned when the kernel command line names no root
// partition by device path (e.g. root=PARTUUID=…).
var ErrUnknown = errors.New("root device not found on kernel command line")

func readCmdline() (string, error) {
	cmdline, err := ioutil.ReadFile(cmdlineFile)
	if err != nil {
		return "", err
	}
	return string(cmdline), nil
}

func find() ([]string, error) {
	cmdline, err := readCmdline()
	if err != nil {
		return nil, err
	}
	matches := rootDeviceRe.FindStringSubmatch(cmdline)
	if len(matches) != 3 {
		return nil, errors.Wrapf(ErrUnknown, "%q", cmdline)
	}
	return matches, nil
}

// BlockDevice returns the device holding the root partition, e.g.
// /dev/mmcblk0 for root=/dev/mmcblk0p2.
func BlockDevice() (string, error) {
	matches, err := find()
	if err != nil {
		return "", err
	}
	return matches[1], nil
}

// PartUUID returns the value of root=PARTUUID= on the kernel command line.
func PartUUID() (string, error) {
	cmdline, err := readCmdline()
	if err != nil {
		return "", err
	}
	matches := partUUIDRe.FindStringSubmatch(cmdline)
	if len(matches) != 2 {
		return "", errors.Wrapf(ErrUnknown, "%q", cmdline)
	}
	return matches[1], nil
}

// IsBootDevice reports whether dev, opened from path, is the device the
// system booted from. A root=/dev/… command line is compared by path, a
// root=PARTUUID=… one against the partition table of dev. It returns false
// if the kernel command line names the root partition in neither way.
func IsBootDevice(path string, dev blockdev.Device) bool {
	if boot, err := BlockDevice(); err == nil {
		return resolve(path) == resolve(boot)
	}
	uuid, err := PartUUID()
	if err != nil {
		return false
	}
	return HasPartUUID(dev, uuid)
}

// HasPartUUID reports whether one of the partitions on dev carries uuid,
// either as a GPT partition GUID or in the MBR form SSSSSSSS-PP.
func HasPartUUID(dev blockdev.Device, uuid string) bool {
	for _, id := range gpt.PartitionUUIDs(dev) {
		if strings.EqualFold(id, uuid) {
			return true
		}
	}
	m := mbrPartUUIDRe.FindStringSubmatch(uuid)
	if m == nil {
		return false
	}
	sig, _ := strconv.ParseUint(m[1], 16, 32)
	num, _ := strconv.ParseUint(m[2], 16, 8)
	s, err := mbr.Read(dev)
	if err != nil || sig == 0 || s.DiskSignature() != uint32(sig) {
		return false
	}
	if num > mbr.NumPartitions {
		// logical partition; the disk signature identifies the disk
		return true
	}
	return num >= 1 && s.Partitions[num-1].Type != mbr.TypeEmpty
}

func resolve(path string) string {
	if p, err := filepath.EvalSymlinks(path); err == nil {
		return p
	}
	return filepath.Clean(path)
}
