package blockdev

// Faulty wraps a Device and fails selected accesses. It does not pass
// through BatchReader, so scans over a Faulty device read single sectors.
// It is meant for tests.
type Faulty struct {
	Device

	// FailRead, if non-nil, is consulted before every read. A non-nil
	// return value fails the read.
	FailRead func(sector uint32) error

	// FailWrite, if non-nil, is consulted before every write.
	FailWrite func(sector uint32) error
}

func (f *Faulty) ReadSector(sector uint32, dst []byte) error {
	if f.FailRead != nil {
		if err := f.FailRead(sector); err != nil {
			return err
		}
	}
	return f.Device.ReadSector(sector, dst)
}

func (f *Faulty) WriteSector(sector uint32, src []byte) error {
	if f.FailWrite != nil {
		if err := f.FailWrite(sector); err != nil {
			return err
		}
	}
	return f.Device.WriteSector(sector, src)
}
