package fat_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/fat"
)

func createImage(t *testing.T, path string, sectors uint32) *blockdev.File {
	t.Helper()
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, int64(sectors)*blockdev.SectorSize); err != nil {
		t.Fatal(err)
	}
	f, err := blockdev.OpenFile(path, os.O_RDWR)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// extractPartition copies the partition of g into a new image file, since
// fsck tools do not read partition tables.
func extractPartition(t *testing.T, disk blockdev.Device, g fat.Geometry, path string) {
	t.Helper()
	part := createImage(t, path, g.VolumeLength)
	s := blockdev.NewScanner(disk, g.PartitionOffset, g.VolumeLength)
	zero := make([]byte, blockdev.SectorSize)
	for s.Next() {
		b := s.Bytes()
		if string(b) == string(zero) {
			continue // keep the image sparse
		}
		if err := part.WriteSector(s.Sector()-g.PartitionOffset, b); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if err := part.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDosfsck(t *testing.T) {
	for _, tt := range []struct {
		sectors uint32
		family  fat.Family
		label   string
		fsck    string
	}{
		{0x4000, fat.FAT16, "BOOT", "fsck.fat"},
		{0x20000, fat.FAT32, "PERM", "fsck.fat"},
		{0x100000, fat.ExFAT, "data", "fsck.exfat"},
	} {
		tt := tt
		t.Run(tt.family.String(), func(t *testing.T) {
			fsck, err := exec.LookPath(tt.fsck)
			if err != nil {
				t.Skipf("%s not installed", tt.fsck)
			}
			dir := t.TempDir()
			disk := createImage(t, filepath.Join(dir, "disk.img"), tt.sectors)
			defer disk.Close()
			g, err := fat.Format(disk, fat.Options{Family: tt.family, Label: tt.label})
			if err != nil {
				t.Fatal(err)
			}
			part := filepath.Join(dir, "part.img")
			extractPartition(t, disk, g, part)

			cmd := exec.Command(fsck, "-n", part)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				t.Fatalf("%v: %v", cmd.Args, err)
			}
		})
	}
}
