// Program fatfmt formats block devices and image files with FAT16, FAT32 or
// exFAT, and inspects the volumes it finds on them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/gokrazy/fatfmt/deviceflag"
)

const usage = `Usage: %s [-d device] [-p partition] [-v] <command> [flags]
Commands
    format           - write a new partition table and an empty file system
    plan             - print the geometry format would use
    probe            - identify the file system on the partition
    label [NEW]      - print or change the volume label
    free             - print the number of free clusters
    delete-partition - remove an entry from the MBR partition table
`

func main() {
	verbose := pflag.BoolP("verbose", "v", false, "log debug messages")
	deviceflag.RegisterPflags(pflag.CommandLine)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		fmt.Fprintln(os.Stderr)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	c := &cli{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		log:       log,
		device:    deviceflag.Device(),
		partition: deviceflag.Partition(),
	}
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	if err := c.run(context.Background(), pflag.Arg(0), pflag.Args()[1:]); err != nil {
		if err == errUsage {
			pflag.Usage()
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

type cli struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	log       logrus.FieldLogger
	device    string
	partition int
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "format":
		return c.format(ctx, args)
	case "plan":
		return c.plan(args)
	case "probe":
		return c.probe(args)
	case "label":
		return c.label(args)
	case "free":
		return c.free(args)
	case "delete-partition":
		return c.deletePartition(args)
	}
	return errUsage
}
