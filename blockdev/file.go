package blockdev

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// File is a Device backed by an image file or a block device node. It
// embeds the *os.File, so it can also be handed to code which wants an
// io.ReaderAt, io.WriterAt and io.Seeker.
type File struct {
	*os.File
	count uint32
}

// OpenFile opens path with the given flags (os.O_RDONLY or os.O_RDWR) and
// determines its size. Block devices are sized with ioctls, regular files
// by their length. Devices larger than 2 TiB are truncated to the first
// 2^32-1 sectors, which is all an MBR can address.
func OpenFile(path string, flag int) (*File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	d, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// NewFile wraps an already opened file.
func NewFile(f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if st.Mode()&os.ModeDevice != 0 {
		ssz, err := logicalSectorSize(f)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: logical sector size", f.Name())
		}
		if ssz != SectorSize {
			return nil, errors.Wrapf(ErrSectorSize, "%s: logical sector size %d", f.Name(), ssz)
		}
		if size, err = deviceSize(f); err != nil {
			return nil, errors.Wrapf(err, "%s: device size", f.Name())
		}
	}
	sectors := size / SectorSize
	if sectors > math.MaxUint32 {
		sectors = math.MaxUint32
	}
	return &File{File: f, count: uint32(sectors)}, nil
}

func (f *File) SectorCount() uint32 { return f.count }

func (f *File) ReadSector(sector uint32, dst []byte) error {
	if err := check(f.count, sector, dst, 1); err != nil {
		return err
	}
	return f.readAt(sector, dst)
}

func (f *File) ReadSectors(sector uint32, dst []byte) error {
	if err := check(f.count, sector, dst, len(dst)/SectorSize); err != nil {
		return err
	}
	return f.readAt(sector, dst)
}

func (f *File) readAt(sector uint32, dst []byte) error {
	n, err := f.ReadAt(dst, int64(sector)*SectorSize)
	if err == io.EOF {
		// Short image files read as zeros past their end.
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
		return nil
	}
	return err
}

func (f *File) WriteSector(sector uint32, src []byte) error {
	if err := check(f.count, sector, src, 1); err != nil {
		return err
	}
	_, err := f.WriteAt(src, int64(sector)*SectorSize)
	return err
}

// Close flushes the file to stable storage and closes it.
func (f *File) Close() error {
	serr := f.File.Sync()
	if err := f.File.Close(); err != nil {
		return err
	}
	return serr
}
