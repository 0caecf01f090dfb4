package mbr

// Geometry is the fake drive geometry used to express LBAs as CHS
// addresses. It only matters to firmware which still reads the CHS fields.
type Geometry struct {
	Heads           uint32
	SectorsPerTrack uint32
}

// CapacityMB returns the device capacity in MiB, rounded up.
func CapacityMB(sectors uint32) uint32 {
	return uint32((uint64(sectors) + 2047) / 2048)
}

// GeometryFor returns the geometry of a device of capacityMB MiB.
func GeometryFor(capacityMB uint32) Geometry {
	g := Geometry{SectorsPerTrack: 63}
	if capacityMB <= 256 {
		g.SectorsPerTrack = 32
	}
	switch {
	case capacityMB <= 16:
		g.Heads = 2
	case capacityMB <= 32:
		g.Heads = 4
	case capacityMB <= 128:
		g.Heads = 8
	case capacityMB <= 504:
		g.Heads = 16
	case capacityMB <= 1008:
		g.Heads = 32
	case capacityMB <= 2016:
		g.Heads = 64
	case capacityMB <= 4032:
		g.Heads = 128
	default:
		g.Heads = 255
	}
	return g
}

// CHS returns the address of lba. Addresses beyond cylinder 1023 saturate
// to 1023/254/63.
func (g Geometry) CHS(lba uint32) CHS {
	var c, h, s uint32
	perCylinder := g.Heads * g.SectorsPerTrack
	if c = lba / perCylinder; c <= 1023 {
		h = (lba % perCylinder) / g.SectorsPerTrack
		s = lba%g.SectorsPerTrack + 1
	} else {
		c, h, s = 1023, 254, 63
	}
	return CHS{
		byte(h),
		byte((c>>2)&0xC0 | s),
		byte(c),
	}
}

// Unpack returns the cylinder, head and sector stored in chs.
func (chs CHS) Unpack() (c, h, s uint32) {
	return uint32(chs[1]&0xC0)<<2 | uint32(chs[2]), uint32(chs[0]), uint32(chs[1] & 0x3F)
}
