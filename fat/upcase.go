package fat

import "unicode"

// minUpcaseRun is the shortest run of unchanged characters which is
// compressed into a 0xFFFF marker and the run length.
const minUpcaseRun = 512

// upcaseRunMarker introduces a compressed run in the up-case table.
const upcaseRunMarker = 0xFFFF

// upcase returns the upper case mapping of the BMP character ch. Characters
// whose upper case form is outside the BMP map to themselves.
func upcase(ch uint16) uint16 {
	u := unicode.ToUpper(rune(ch))
	if u > 0xFFFF {
		return ch
	}
	return uint16(u)
}

// UpcaseTable returns the compressed exFAT up-case table covering
// U+0000 to U+FFFF, little endian, together with its checksum.
func UpcaseTable() ([]byte, uint32) {
	var b []byte
	emit := func(v uint16) {
		b = append(b, byte(v), byte(v>>8))
	}
	for ch := uint32(0); ch <= 0xFFFF; {
		if uc := upcase(uint16(ch)); uint32(uc) != ch {
			emit(uc)
			ch++
			continue
		}
		end := ch + 1
		for end <= 0xFFFF && uint32(upcase(uint16(end))) == end {
			end++
		}
		if run := end - ch; run >= minUpcaseRun {
			emit(upcaseRunMarker)
			emit(uint16(run))
			ch = end
			continue
		}
		for ; ch < end; ch++ {
			emit(uint16(ch))
		}
	}
	return b, tableChecksum(b)
}
