package blockdev

// Memory is a sparse in-memory Device. Sectors which were never written, or
// were last written with zeros, occupy no memory.
//
// A Memory is not safe for concurrent use.
type Memory struct {
	count   uint32
	sectors map[uint32]*[SectorSize]byte
}

// NewMemory returns an all-zero device of count sectors.
func NewMemory(count uint32) *Memory {
	return &Memory{
		count:   count,
		sectors: make(map[uint32]*[SectorSize]byte),
	}
}

func (m *Memory) SectorCount() uint32 { return m.count }

func (m *Memory) ReadSector(sector uint32, dst []byte) error {
	if err := check(m.count, sector, dst, 1); err != nil {
		return err
	}
	m.read(sector, dst)
	return nil
}

func (m *Memory) ReadSectors(sector uint32, dst []byte) error {
	n := len(dst) / SectorSize
	if err := check(m.count, sector, dst, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		m.read(sector+uint32(i), dst[i*SectorSize:(i+1)*SectorSize])
	}
	return nil
}

func (m *Memory) read(sector uint32, dst []byte) {
	if s, ok := m.sectors[sector]; ok {
		copy(dst, s[:])
		return
	}
	for i := range dst {
		dst[i] = 0
	}
}

func (m *Memory) WriteSector(sector uint32, src []byte) error {
	if err := check(m.count, sector, src, 1); err != nil {
		return err
	}
	if isZero(src) {
		delete(m.sectors, sector)
		return nil
	}
	s, ok := m.sectors[sector]
	if !ok {
		s = new([SectorSize]byte)
		m.sectors[sector] = s
	}
	copy(s[:], src)
	return nil
}

// Allocated returns the number of sectors holding non-zero data.
func (m *Memory) Allocated() int { return len(m.sectors) }

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
