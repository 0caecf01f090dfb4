package fat

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

// fatLabelForbidden lists the characters which cannot appear in a FAT short
// name, and hence in a FAT label.
const fatLabelForbidden = `"*+,./:;<=>?[\]|`

// fatLabel encodes label as a space padded FAT short name. Only printable
// ASCII is accepted. Labels are stored as given, without upper casing.
func fatLabel(label string) ([11]byte, error) {
	var name [11]byte
	if label == "" || len(label) > len(name) {
		return name, errors.Wrapf(ErrInvalidLabel, "%q: must be 1 to 11 characters", label)
	}
	if label[0] == ' ' {
		return name, errors.Wrapf(ErrInvalidLabel, "%q: leading space", label)
	}
	for i := 0; i < len(label); i++ {
		if c := label[i]; c < 0x20 || c > 0x7E || strings.IndexByte(fatLabelForbidden, c) >= 0 {
			return name, errors.Wrapf(ErrInvalidLabel, "%q: character %q", label, c)
		}
	}
	copy(name[:], "           ")
	copy(name[:], label)
	return name, nil
}

// exfatLabel encodes label as UTF-16.
func exfatLabel(label string) ([]uint16, error) {
	if !utf8.ValidString(label) {
		return nil, errors.Wrapf(ErrInvalidLabel, "%q: not UTF-8", label)
	}
	units := utf16.Encode([]rune(label))
	if len(units) == 0 || len(units) > maxExFATLabel {
		return nil, errors.Wrapf(ErrInvalidLabel, "%q: must be 1 to %d UTF-16 code units", label, maxExFATLabel)
	}
	for _, u := range units {
		if u < 0x20 {
			return nil, errors.Wrapf(ErrInvalidLabel, "%q: control character", label)
		}
	}
	return units, nil
}

func validateLabel(family Family, label string) error {
	if family == ExFAT {
		_, err := exfatLabel(label)
		return err
	}
	_, err := fatLabel(label)
	return err
}

// slot is a directory entry position.
type slot struct {
	sector uint32
	offset int
}

// Label returns the label stored in the root directory.
func (v *FATVolume) Label() (string, error) {
	var label string
	found := false
	err := v.walkRoot(func(_ uint32, buf []byte) (bool, error) {
		for off := 0; off < len(buf); off += dirEntrySize {
			e := buf[off : off+dirEntrySize]
			switch {
			case e[0] == entryEnd:
				return true, nil
			case e[0] == entryDeleted, e[11]&attrLongName == attrLongName:
				continue
			case e[11]&attrVolumeID != 0:
				label = strings.TrimRight(string(e[:11]), " ")
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrLabelNotFound
	}
	return label, nil
}

// SetLabel replaces the label entry in the root directory, or adds one in
// the first free slot. The label in the boot sector (and its FAT32 backup)
// is updated as well.
//
// Unlike DOS and Windows tools, SetLabel does not upper case the label:
// "boot" is stored as "boot" and Label returns it unchanged. Callers who
// want the DOS convention pass strings.ToUpper(label).
func (v *FATVolume) SetLabel(label string) error {
	name, err := fatLabel(label)
	if err != nil {
		return err
	}
	now := timeNow()
	var (
		free    *slot
		written bool
	)
	err = v.walkRoot(func(sector uint32, buf []byte) (bool, error) {
		for off := 0; off < len(buf); off += dirEntrySize {
			e := buf[off : off+dirEntrySize]
			switch {
			case e[0] == entryEnd || e[0] == entryDeleted:
				if free == nil {
					free = &slot{sector, off}
				}
				if e[0] == entryEnd {
					return true, nil
				}
			case e[11]&attrLongName == attrLongName:
			case e[11]&attrVolumeID != 0:
				copy(e[:11], name[:])
				binary.LittleEndian.PutUint16(e[22:], dosTime(now))
				binary.LittleEndian.PutUint16(e[24:], dosDate(now))
				written = true
				return true, blockdev.Write(v.dev, sector, buf)
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !written {
		if free == nil {
			return ErrRootDirFull
		}
		buf := make([]byte, sectorSize)
		if err := blockdev.Read(v.dev, free.sector, buf); err != nil {
			return err
		}
		encode(buf[free.offset:], &dirEntry{
			Name:      name,
			Attr:      attrVolumeID,
			WriteTime: dosTime(now),
			WriteDate: dosDate(now),
		})
		if err := blockdev.Write(v.dev, free.sector, buf); err != nil {
			return err
		}
	}
	return v.setBootLabel(name)
}

func (v *FATVolume) setBootLabel(name [11]byte) error {
	off := fat16LabelOffset
	if v.family == FAT32 {
		off = fat32LabelOffset
	}
	sectors := []uint32{v.start}
	if v.family == FAT32 && v.backupBoot != 0 {
		sectors = append(sectors, v.start+v.backupBoot)
	}
	buf := make([]byte, sectorSize)
	for _, sector := range sectors {
		if err := blockdev.Read(v.dev, sector, buf); err != nil {
			return err
		}
		copy(buf[off:off+len(name)], name[:])
		if err := blockdev.Write(v.dev, sector, buf); err != nil {
			return err
		}
	}
	return nil
}

// Label returns the label stored in the root directory.
func (v *ExFATVolume) Label() (string, error) {
	var label string
	found := false
	err := v.walkRoot(func(_ uint32, buf []byte) (bool, error) {
		for off := 0; off < len(buf); off += dirEntrySize {
			switch e := buf[off : off+dirEntrySize]; e[0] {
			case entryEnd:
				return true, nil
			case exfatEntryLabel:
				var le exfatLabelEntry
				if err := decode(e, &le); err != nil {
					return true, err
				}
				n := int(le.CharacterCount)
				if n > maxExFATLabel {
					n = maxExFATLabel
				}
				label = string(utf16.Decode(le.VolumeLabel[:n]))
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrLabelNotFound
	}
	return label, nil
}

// SetLabel replaces the label entry (in use or not) in the root
// directory, or adds one in the first free slot.
func (v *ExFATVolume) SetLabel(label string) error {
	units, err := exfatLabel(label)
	if err != nil {
		return err
	}
	le := exfatLabelEntry{
		EntryType:      exfatEntryLabel,
		CharacterCount: uint8(len(units)),
	}
	copy(le.VolumeLabel[:], units)

	var (
		free    *slot
		written bool
	)
	err = v.walkRoot(func(sector uint32, buf []byte) (bool, error) {
		for off := 0; off < len(buf); off += dirEntrySize {
			switch t := buf[off]; {
			case t == exfatEntryLabel || t == exfatEntryLabel&^exfatInUse:
				encode(buf[off:off+dirEntrySize], &le)
				written = true
				return true, blockdev.Write(v.dev, sector, buf)
			case t&exfatInUse == 0:
				if free == nil {
					free = &slot{sector, off}
				}
				if t == entryEnd {
					return true, nil
				}
			}
		}
		return false, nil
	})
	if err != nil || written {
		return err
	}
	if free == nil {
		return ErrRootDirFull
	}
	buf := make([]byte, sectorSize)
	if err := blockdev.Read(v.dev, free.sector, buf); err != nil {
		return err
	}
	encode(buf[free.offset:free.offset+dirEntrySize], &le)
	return blockdev.Write(v.dev, free.sector, buf)
}
