package blockdev

// batchSectors is how many sectors a Scanner requests at once from a
// BatchReader.
const batchSectors = 64

// Scanner iterates over a run of consecutive sectors. Devices implementing
// BatchReader are read in batches, others one sector at a time:
//
//	s := blockdev.NewScanner(dev, start, count)
//	for s.Next() {
//		process(s.Sector(), s.Bytes())
//	}
//	if err := s.Err(); err != nil {
//		return err
//	}
type Scanner struct {
	dev   Device
	batch BatchReader

	next      uint32 // first sector not yet read into buf
	remaining uint32 // sectors not yet yielded
	buf       []byte
	filled    int // sectors in buf
	cur       int // index of the current sector in buf
	err       error
}

// NewScanner returns a Scanner yielding count sectors starting at start.
func NewScanner(dev Device, start, count uint32) *Scanner {
	s := &Scanner{
		dev:       dev,
		next:      start,
		remaining: count,
		cur:       -1,
	}
	n := 1
	if br, ok := dev.(BatchReader); ok {
		s.batch = br
		n = batchSectors
	}
	if uint32(n) > count {
		n = int(count)
	}
	s.buf = make([]byte, n*SectorSize)
	return s
}

// Next advances to the following sector. It returns false when all sectors
// were yielded or a read failed; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.err != nil || s.remaining == 0 {
		return false
	}
	if s.cur+1 < s.filled {
		s.cur++
		s.remaining--
		return true
	}
	n := uint32(len(s.buf) / SectorSize)
	if n > s.remaining {
		n = s.remaining
	}
	buf := s.buf[:n*SectorSize]
	var err error
	if s.batch != nil && n > 1 {
		err = s.batch.ReadSectors(s.next, buf)
	} else {
		n = 1
		buf = s.buf[:SectorSize]
		err = s.dev.ReadSector(s.next, buf)
	}
	if err != nil {
		s.err = &IOError{Op: "read", Sector: s.next, Err: err}
		return false
	}
	s.next += n
	s.filled = int(n)
	s.cur = 0
	s.remaining--
	return true
}

// Sector returns the number of the current sector.
func (s *Scanner) Sector() uint32 {
	return s.next - uint32(s.filled) + uint32(s.cur)
}

// Bytes returns the contents of the current sector. The slice is only valid
// until the next call to Next, but may be modified and written back.
func (s *Scanner) Bytes() []byte {
	return s.buf[s.cur*SectorSize : (s.cur+1)*SectorSize]
}

// Err returns the read error which stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }
