package fat

// exFAT boot sector bytes excluded from the boot region checksum: they
// change while the volume is mounted.
const (
	volumeFlagsOffset  = 106
	percentInUseOffset = 112
)

// bootRegionChecksummed is the number of boot region sectors covered by
// the checksum sector which follows them.
const bootRegionChecksummed = 11

// ExFATChecksum folds b into the running exFAT checksum sum: the sum is
// rotated right by one bit, then b is added.
func ExFATChecksum(sum uint32, b byte) uint32 {
	return (sum<<31 | sum>>1) + uint32(b)
}

// bootChecksum folds one boot region sector into sum. first is set for the
// main boot sector, whose volume flags and percent in use are skipped.
func bootChecksum(sum uint32, sector []byte, first bool) uint32 {
	for i, b := range sector {
		if first && (i == volumeFlagsOffset || i == volumeFlagsOffset+1 || i == percentInUseOffset) {
			continue
		}
		sum = ExFATChecksum(sum, b)
	}
	return sum
}

// BootChecksum computes the exFAT boot region checksum over sectors, which
// starts with the main boot sector.
func BootChecksum(sectors [][]byte) uint32 {
	var sum uint32
	for i, s := range sectors {
		sum = bootChecksum(sum, s, i == 0)
	}
	return sum
}

// tableChecksum computes the checksum of the up-case table.
func tableChecksum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum = ExFATChecksum(sum, c)
	}
	return sum
}
