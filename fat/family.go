package fat

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Family selects the file system layout.
type Family int

const (
	// Auto picks FAT16, FAT32 or exFAT by device size.
	Auto Family = iota
	// FAT picks FAT16 or FAT32 by device size.
	FAT
	FAT16
	FAT32
	ExFAT
)

var familyNames = map[Family]string{
	Auto:  "auto",
	FAT:   "fat",
	FAT16: "fat16",
	FAT32: "fat32",
	ExFAT: "exfat",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily parses the (case insensitive) output of Family.String.
func ParseFamily(s string) (Family, error) {
	s = strings.ToLower(s)
	for f, name := range familyNames {
		if name == s {
			return f, nil
		}
	}
	return Auto, errors.Wrapf(ErrUnknownFamily, "%q", s)
}

// MarshalYAML and UnmarshalYAML let configuration files name families.
func (f Family) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (f *Family) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseFamily(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// resolve maps Auto and FAT to a concrete family for a device of
// totalSectors sectors. Explicit families are returned unchanged.
func (f Family) resolve(totalSectors uint32) Family {
	switch f {
	case Auto:
		switch {
		case totalSectors < fat16MaxSectors:
			return FAT16
		case totalSectors < fat32MaxSectors:
			return FAT32
		}
		return ExFAT
	case FAT:
		if totalSectors < fat16MaxSectors {
			return FAT16
		}
		return FAT32
	}
	return f
}
