package deviceflag

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestRegisterPflags(t *testing.T) {
	defer SetDevice(Device())
	defer SetPartition(Partition())

	fs := pflag.NewFlagSet("fatfmt", pflag.ContinueOnError)
	RegisterPflags(fs)
	if err := fs.Parse([]string{"-d", "/tmp/disk.img", "--partition=0", "probe"}); err != nil {
		t.Fatal(err)
	}
	if got, want := Device(), "/tmp/disk.img"; got != want {
		t.Errorf("Device() = %q, want %q", got, want)
	}
	if got, want := Partition(), 0; got != want {
		t.Errorf("Partition() = %d, want %d", got, want)
	}
	if got, want := fs.Args(), []string{"probe"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("Args() = %q, want %q", got, want)
	}
}
