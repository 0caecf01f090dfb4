package fat

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/gokrazy/fatfmt/blockdev"
)

const (
	sectorSize = blockdev.SectorSize

	// bootSignature ends every boot sector (bytes 0x55 0xAA).
	bootSignature = uint16(0xAA55)

	// hardDisk is the media descriptor for a hard disk (as opposed to floppy).
	hardDisk = uint8(0xF8)

	dirEntrySize     = 32
	entriesPerSector = sectorSize / dirEntrySize

	// extendedBootSignature announces the volume ID, label and type fields.
	extendedBootSignature = uint8(0x29)

	// driveNumber is the BIOS number of the first hard disk.
	driveNumber = uint8(0x80)
)

// FAT short directory entry markers and attributes.
const (
	entryEnd     = 0x00
	entryDeleted = 0xE5

	attrVolumeID = 0x08
	attrLongName = 0x0F
)

// exFAT directory entry types. Bit 7 marks an entry in use.
const (
	exfatInUse       = 0x80
	exfatEntryBitmap = 0x81
	exfatEntryUpcase = 0x82
	exfatEntryLabel  = 0x83
)

var (
	oemName = [8]byte{'g', 'o', 'k', 'r', 'a', 'z', 'y', '!'}

	// noName is the label of a volume which has none.
	noName = [11]byte{'N', 'O', ' ', 'N', 'A', 'M', 'E', ' ', ' ', ' ', ' '}

	exfatName = [8]byte{'E', 'X', 'F', 'A', 'T', ' ', ' ', ' '}
)

// biosParameterBlock is shared by FAT16 and FAT32 boot sectors.
type biosParameterBlock struct {
	JumpCode          [3]byte // intel 80x86 jump instruction
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntryCount    uint16 // 0 for FAT32
	TotalSectors16    uint16 // 0 = use TotalSectors32
	MediaType         uint8
	SectorsPerFAT16   uint16 // 0 for FAT32
	SectorsPerTrack   uint16 // (only for bootcode)
	HeadCount         uint16 // (only for bootcode)
	HiddenSectors     uint32 // sectors preceding the partition
	TotalSectors32    uint32
}

// extendedBPB follows the BPB (FAT16) or the FAT32 fields.
type extendedBPB struct {
	DriveNumber    uint8 // (only for bootcode)
	Reserved       uint8
	BootSignature  uint8 // extendedBootSignature
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

type fat16BootSector struct {
	BPB       biosParameterBlock
	Ext       extendedBPB
	BootCode  [448]byte
	Signature uint16
}

type fat32BootSector struct {
	BPB              biosParameterBlock
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	Reserved         [12]byte
	Ext              extendedBPB
	BootCode         [420]byte
	Signature        uint16
}

// Byte offsets of the extended BPB label field.
const (
	fat16LabelOffset = 43
	fat32LabelOffset = 71
)

const (
	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000

	// fsInfoUnknown marks an unknown free count or next free hint.
	fsInfoUnknown = 0xFFFFFFFF
)

type fsInfo struct {
	LeadSignature   uint32
	Reserved1       [480]byte
	StructSignature uint32
	FreeCount       uint32
	NextFree        uint32
	Reserved2       [12]byte
	TrailSignature  uint32
}

func (fi *fsInfo) valid() bool {
	return fi.LeadSignature == fsInfoLeadSignature &&
		fi.StructSignature == fsInfoStructSignature &&
		fi.TrailSignature == fsInfoTrailSignature
}

type exfatBootSector struct {
	JumpCode               [3]byte
	FileSystemName         [8]byte
	MustBeZero             [53]byte
	PartitionOffset        uint64
	VolumeLength           uint64
	FATOffset              uint32
	FATLength              uint32
	ClusterHeapOffset      uint32
	ClusterCount           uint32
	RootDirectoryCluster   uint32
	VolumeSerialNumber     uint32
	FileSystemRevision     uint16
	VolumeFlags            uint16
	BytesPerSectorShift    uint8
	SectorsPerClusterShift uint8
	NumberOfFATs           uint8
	DriveSelect            uint8
	PercentInUse           uint8
	Reserved               [7]byte
	BootCode               [390]byte
	BootSignature          uint16
}

// dirEntry is a FAT short directory entry.
type dirEntry struct {
	Name             [11]byte
	Attr             uint8
	NTReserved       uint8
	CreateTimeTenth  uint8
	CreateTime       uint16
	CreateDate       uint16
	AccessDate       uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

const maxExFATLabel = 11

type exfatLabelEntry struct {
	EntryType      uint8
	CharacterCount uint8
	VolumeLabel    [maxExFATLabel]uint16
	Reserved       [8]byte
}

type exfatBitmapEntry struct {
	EntryType    uint8
	BitmapFlags  uint8 // bit 0 selects the bitmap of the second FAT
	Reserved     [18]byte
	FirstCluster uint32
	DataLength   uint64
}

type exfatUpcaseEntry struct {
	EntryType     uint8
	Reserved1     [3]byte
	TableChecksum uint32
	Reserved2     [12]byte
	FirstCluster  uint32
	DataLength    uint64
}

// encode writes the little endian encoding of v to the start of dst.
func encode(dst []byte, v interface{}) {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail, and all structs are fixed size
	binary.Write(&buf, binary.LittleEndian, v)
	copy(dst, buf.Bytes())
}

// decode fills v from the start of src.
func decode(src []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(src), binary.LittleEndian, v)
}

func dosTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

func dosDate(t time.Time) uint16 {
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

// timeNow is replaced in tests.
var timeNow = time.Now
