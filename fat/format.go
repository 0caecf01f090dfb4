package fat

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/mbr"
)

// Progress receives advisory updates while Format writes. Implementations
// must not block.
type Progress interface {
	SetStatus(status string)
	// SetTotal announces how many bytes the current phase will write.
	SetTotal(bytes uint64)
	Add(bytes uint64)
}

type noProgress struct{}

func (noProgress) SetStatus(string) {}
func (noProgress) SetTotal(uint64)  {}
func (noProgress) Add(uint64)       {}

// Options configure Format. The zero value formats with an automatically
// selected family and no label.
type Options struct {
	Family Family

	// Label, if non-empty, is set after formatting.
	Label string

	// VolumeID is the volume serial number. 0 derives it from the
	// device sector count, which keeps repeated formats reproducible.
	VolumeID uint32

	Progress Progress

	// Log defaults to discarding all messages.
	Log logrus.FieldLogger
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Format plans a geometry for dev (see Plan) and writes an empty file
// system of that geometry, including a new MBR holding one partition.
// Existing data on dev is lost.
//
// Planning errors are returned before anything is written. Once writing
// started, errors match ErrFormatFailed and leave dev in an undefined
// state.
func Format(dev blockdev.Device, opts Options) (Geometry, error) {
	log := opts.Log
	if log == nil {
		log = discardLogger()
	}
	progress := opts.Progress
	if progress == nil {
		progress = noProgress{}
	}

	g, err := Plan(dev.SectorCount(), opts.Family)
	if err != nil {
		return Geometry{}, err
	}
	log.WithFields(logrus.Fields{
		"family":              g.Family,
		"sectors":             g.SectorCount,
		"sectors_per_cluster": g.SectorsPerCluster,
		"clusters":            g.ClusterCount,
		"partition_offset":    g.PartitionOffset,
		"volume_length":       g.VolumeLength,
		"partition_type":      g.PartType,
	}).Debug("planned geometry")

	if opts.Label != "" {
		if err := validateLabel(g.Family, opts.Label); err != nil {
			return g, err
		}
	}

	volumeID := opts.VolumeID
	if volumeID == 0 {
		volumeID = g.SectorCount
	}
	w := &sectorWriter{
		dev:      dev,
		progress: progress,
		log:      log,
	}
	if g.Family == ExFAT {
		err = w.formatExFAT(g, volumeID)
	} else {
		err = w.formatFAT(g, volumeID)
	}
	if err != nil {
		return g, &formatError{err}
	}
	log.Infof("formatted %v volume of %d clusters", g.Family, g.ClusterCount)

	if opts.Label != "" {
		vol, err := Probe(dev, 1)
		if err != nil {
			return g, &formatError{err}
		}
		if err := vol.SetLabel(opts.Label); err != nil {
			return g, &formatError{err}
		}
		log.Infof("volume label set to %q", opts.Label)
	}
	return g, nil
}

// sectorWriter writes sectors for Format and reports each write as
// progress.
type sectorWriter struct {
	dev      blockdev.Device
	progress Progress
	log      logrus.FieldLogger
	zeros    [sectorSize]byte
}

func (w *sectorWriter) phase(status string, sectors uint32) {
	w.log.Debugf("%s: %d sectors", status, sectors)
	w.progress.SetStatus(status)
	w.progress.SetTotal(uint64(sectors) * sectorSize)
}

func (w *sectorWriter) write(sector uint32, b []byte) error {
	if err := blockdev.Write(w.dev, sector, b); err != nil {
		return err
	}
	w.progress.Add(sectorSize)
	return nil
}

// zero clears count sectors starting at start.
func (w *sectorWriter) zero(start, count uint32) error {
	for i := uint32(0); i < count; i++ {
		if err := w.write(start+i, w.zeros[:]); err != nil {
			return err
		}
	}
	return nil
}

// writeMBR writes sector 0 with a single partition in the first slot.
func (w *sectorWriter) writeMBR(g Geometry) error {
	chs := mbr.GeometryFor(mbr.CapacityMB(g.SectorCount))
	s := &mbr.Sector{Signature: mbr.Signature}
	s.Partitions[0] = mbr.PartitionEntry{
		Boot:            0x00, // not marked active
		BeginCHS:        chs.CHS(g.PartitionOffset),
		Type:            g.PartType,
		EndCHS:          chs.CHS(g.PartitionOffset + g.VolumeLength - 1),
		RelativeSectors: g.PartitionOffset,
		TotalSectors:    g.VolumeLength,
	}
	return w.write(0, s.Marshal())
}
