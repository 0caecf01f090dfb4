package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/config"
	"github.com/gokrazy/fatfmt/fat"
	"github.com/gokrazy/fatfmt/mbr"
	"github.com/gokrazy/fatfmt/progress"
	"github.com/gokrazy/fatfmt/rootdev"
)

var (
	errUsage    = errors.New("usage")
	errNoDevice = errors.New("no device: pass -d or set $FATFMT_DEVICE")
	errAborted  = errors.New("aborted")

	errBootDevice = errors.New("refusing to format the device the running system booted from")
)

func (c *cli) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parse parses args, treating -h as success.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *cli) open(flag int) (*blockdev.File, error) {
	if c.device == "" {
		return nil, errNoDevice
	}
	return blockdev.OpenFile(c.device, flag)
}

func (c *cli) confirm(question string) (bool, error) {
	fmt.Fprintf(c.stdout, "%s [y/N] ", question)
	s := bufio.NewScanner(c.stdin)
	if !s.Scan() {
		return false, s.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(s.Text()))
	return answer == "y" || answer == "yes", nil
}

func (c *cli) format(ctx context.Context, args []string) (err error) {
	defaults, err := config.Load()
	if err != nil {
		return err
	}
	fs := c.flagSet("format")
	var (
		family   = fs.String("family", defaults.Family.String(), "auto, fat, fat16, fat32 or exfat")
		label    = fs.String("label", defaults.Label, "volume label")
		volumeID = fs.Uint32("volume-id", defaults.VolumeID, "volume serial number (0 derives it from the device size)")
		yes      = fs.BoolP("yes", "y", false, "do not ask for confirmation")
	)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	f, err := fat.ParseFamily(*family)
	if err != nil {
		return err
	}

	dev, err := c.open(os.O_RDWR)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()
	if rootdev.IsBootDevice(c.device, dev) {
		return errors.Wrapf(errBootDevice, "%s", c.device)
	}

	g, err := fat.Plan(dev.SectorCount(), f)
	if err != nil {
		return err
	}
	if !*yes {
		ok, err := c.confirm(fmt.Sprintf("Format %s (%s) as %v? All data on it will be lost.",
			c.device,
			humanize.IBytes(uint64(dev.SectorCount())*blockdev.SectorSize),
			g.Family))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	var p progress.Reporter
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		p.Report(ectx, c.stderr)
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		var err error
		g, err = fat.Format(dev, fat.Options{
			Family:   f,
			Label:    *label,
			VolumeID: *volumeID,
			Progress: &p,
			Log:      c.log,
		})
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "formatted %s: %v, %d clusters of %s\n",
		c.device,
		g.Family,
		g.ClusterCount,
		humanize.IBytes(uint64(g.BytesPerCluster())))
	return nil
}

func (c *cli) plan(args []string) error {
	fs := c.flagSet("plan")
	var (
		family  = fs.String("family", "auto", "auto, fat, fat16, fat32 or exfat")
		sectors = fs.Uint32("sectors", 0, "device size in 512 byte sectors (default: size of -d)")
	)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	f, err := fat.ParseFamily(*family)
	if err != nil {
		return err
	}
	if *sectors == 0 {
		dev, err := c.open(os.O_RDONLY)
		if err != nil {
			return err
		}
		*sectors = dev.SectorCount()
		if err := dev.Close(); err != nil {
			return err
		}
	}
	g, err := fat.Plan(*sectors, f)
	if err != nil {
		return err
	}
	pretty.Fprintf(c.stdout, "%# v\n", g)
	fmt.Fprintf(c.stdout, "%v volume of %s, %d clusters of %s\n",
		g.Family,
		humanize.IBytes(uint64(g.VolumeLength)*blockdev.SectorSize),
		g.ClusterCount,
		humanize.IBytes(uint64(g.BytesPerCluster())))
	return nil
}

// probeDevice opens the device and probes the selected partition. The
// returned close function must be called once the volume is no longer
// used.
func (c *cli) probeDevice(flag int) (fat.Volume, func() error, error) {
	dev, err := c.open(flag)
	if err != nil {
		return nil, nil, err
	}
	v, err := fat.Probe(dev, c.partition)
	if err != nil {
		return nil, nil, multierr.Append(err, dev.Close())
	}
	return v, dev.Close, nil
}

func (c *cli) probe(args []string) (err error) {
	if ok, err := parse(c.flagSet("probe"), args); !ok {
		return err
	}
	v, closeDev, err := c.probeDevice(os.O_RDONLY)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	label, err := v.Label()
	switch {
	case errors.Is(err, fat.ErrLabelNotFound):
		label = "(none)"
	case err != nil:
		return err
	default:
		label = strconv.Quote(label)
	}
	fmt.Fprintf(c.stdout, "family:          %v\n", v.Family())
	fmt.Fprintf(c.stdout, "partition start: sector %d\n", v.PartitionStart())
	fmt.Fprintf(c.stdout, "cluster size:    %s (%d sectors)\n", humanize.IBytes(uint64(v.BytesPerCluster())), v.SectorsPerCluster())
	fmt.Fprintf(c.stdout, "clusters:        %d (%s)\n", v.ClusterCount(), humanize.IBytes(uint64(v.ClusterCount())*uint64(v.BytesPerCluster())))
	fmt.Fprintf(c.stdout, "FAT start:       sector %d\n", v.FATStartSector())
	fmt.Fprintf(c.stdout, "data start:      sector %d\n", v.DataStartSector())
	fmt.Fprintf(c.stdout, "label:           %s\n", label)
	return nil
}

func (c *cli) label(args []string) (err error) {
	fs := c.flagSet("label")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if fs.NArg() > 1 {
		return errUsage
	}
	flag := os.O_RDONLY
	if fs.NArg() == 1 {
		flag = os.O_RDWR
	}
	v, closeDev, err := c.probeDevice(flag)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	if fs.NArg() == 1 {
		return v.SetLabel(fs.Arg(0))
	}
	label, err := v.Label()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, label)
	return nil
}

func (c *cli) free(args []string) (err error) {
	fs := c.flagSet("free")
	var (
		cached = fs.Bool("cached", false, "print the count cached in the FAT32 FSInfo sector instead of scanning")
		update = fs.Bool("update", false, "scan, then store the count in the FAT32 FSInfo sector")
	)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	flag := os.O_RDONLY
	if *update {
		flag = os.O_RDWR
	}
	v, closeDev, err := c.probeDevice(flag)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	var free uint32
	fv, isFAT := v.(*fat.FATVolume)
	switch {
	case (*cached || *update) && !isFAT:
		return errors.Wrapf(fat.ErrNoFSInfo, "%v volume", v.Family())
	case *update:
		free, err = fv.UpdateCachedFreeCount()
	case *cached:
		free, err = fv.CachedFreeCount()
	default:
		free, err = v.FreeClusterCount()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%d free clusters (%s)\n", free, humanize.IBytes(uint64(free)*uint64(v.BytesPerCluster())))
	return nil
}

func (c *cli) deletePartition(args []string) (err error) {
	fs := c.flagSet("delete-partition")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return errors.Wrapf(mbr.ErrBadPartition, "%q", fs.Arg(0))
	}
	dev, err := c.open(os.O_RDWR)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()
	return mbr.DeletePartition(dev, n)
}
