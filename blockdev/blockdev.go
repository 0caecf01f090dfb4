// Package blockdev defines the sector-addressed block devices which the fat
// package formats and probes, along with an in-memory and a file-backed
// implementation.
//
// All devices use 512 byte sectors. Other sector sizes are not supported.
package blockdev

import (
	"fmt"

	"github.com/pkg/errors"
)

// SectorSize is the size in bytes of every sector read or written.
const SectorSize = 512

// Device is a block device which reads and writes single sectors
// synchronously. Implementations are assumed to retry transient failures
// themselves: an error is final.
type Device interface {
	// ReadSector reads sector into dst, which must be SectorSize bytes long.
	ReadSector(sector uint32, dst []byte) error

	// WriteSector writes src, which must be SectorSize bytes long, to sector.
	WriteSector(sector uint32, src []byte) error

	// SectorCount returns the number of addressable sectors.
	SectorCount() uint32
}

// BatchReader is implemented by devices which can read several consecutive
// sectors with a single request. len(dst) is a multiple of SectorSize.
type BatchReader interface {
	ReadSectors(sector uint32, dst []byte) error
}

var (
	// ErrReadFailed matches every error returned by Read.
	ErrReadFailed = errors.New("sector read failed")

	// ErrWriteFailed matches every error returned by Write.
	ErrWriteFailed = errors.New("sector write failed")

	// ErrOutOfRange indicates an access beyond SectorCount.
	ErrOutOfRange = errors.New("sector out of range")

	// ErrSectorSize indicates a buffer which is not a multiple of SectorSize,
	// or a device whose logical sector size is not SectorSize.
	ErrSectorSize = errors.New("unsupported sector size")
)

// IOError records a failed sector read or write.
type IOError struct {
	Op     string // "read" or "write"
	Sector uint32
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s sector %d: %v", e.Op, e.Sector, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes read errors match ErrReadFailed and write errors match
// ErrWriteFailed.
func (e *IOError) Is(target error) bool {
	switch target {
	case ErrReadFailed:
		return e.Op == "read"
	case ErrWriteFailed:
		return e.Op == "write"
	}
	return false
}

// Read reads sector from d, reporting failures as *IOError.
func Read(d Device, sector uint32, dst []byte) error {
	if err := d.ReadSector(sector, dst); err != nil {
		return &IOError{Op: "read", Sector: sector, Err: err}
	}
	return nil
}

// Write writes sector to d, reporting failures as *IOError.
func Write(d Device, sector uint32, src []byte) error {
	if err := d.WriteSector(sector, src); err != nil {
		return &IOError{Op: "write", Sector: sector, Err: err}
	}
	return nil
}

func check(count, sector uint32, p []byte, n int) error {
	if len(p) != n*SectorSize {
		return errors.Wrapf(ErrSectorSize, "len(p) = %d", len(p))
	}
	if uint64(sector)+uint64(n) > uint64(count) {
		return errors.Wrapf(ErrOutOfRange, "[%d, %d)", sector, uint64(sector)+uint64(n))
	}
	return nil
}
