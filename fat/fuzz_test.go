package fat_test

import (
	"errors"
	"testing"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/fat"
)

func FuzzFormat(f *testing.F) {
	f.Add(uint32(0x4000), uint8(fat.Auto), "BOOT")
	f.Add(uint32(0x20000), uint8(fat.FAT32), "")
	f.Add(uint32(0x100000), uint8(fat.ExFAT), "Grüße")
	f.Fuzz(func(t *testing.T, sectors uint32, family uint8, label string) {
		if sectors > 0x200000 {
			return // keep the FATs small
		}
		dev := blockdev.NewMemory(sectors)
		opts := fat.Options{
			Family: fat.Family(family % 5),
			Label:  label,
		}
		g, err := fat.Format(dev, opts)
		if err != nil {
			if errors.Is(err, fat.ErrFormatFailed) {
				t.Fatalf("Format(%d sectors, %v, %q): %v", sectors, opts.Family, label, err)
			}
			return
		}
		v, err := fat.Probe(dev, 1)
		if err != nil {
			t.Fatalf("Probe after Format(%d sectors, %v): %v", sectors, opts.Family, err)
		}
		if got, want := v.Family(), g.Family; got != want {
			t.Errorf("Probe: family %v, want %v", got, want)
		}
		if got, want := v.ClusterCount(), g.ClusterCount; got != want {
			t.Errorf("Probe: %d clusters, want %d", got, want)
		}
		free, err := v.FreeClusterCount()
		if err != nil {
			t.Fatal(err)
		}
		if want := g.FreeClusters(); free != want {
			t.Errorf("FreeClusterCount() = %d, want %d", free, want)
		}
		if label == "" {
			return
		}
		got, err := v.Label()
		if err != nil {
			t.Fatal(err)
		}
		if g.Family != fat.ExFAT {
			// FAT labels are space padded on disk.
			for len(label) > 0 && label[len(label)-1] == ' ' {
				label = label[:len(label)-1]
			}
		}
		if got != label {
			t.Errorf("Label() = %q, want %q", got, label)
		}
	})
}
