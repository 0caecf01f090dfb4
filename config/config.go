// Package config reads the fatfmt defaults file, which supplies values for
// flags the user did not pass on the command line.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/gokrazy/fatfmt/fat"
)

// Defaults is the content of config.yaml:
//
//	family: exfat
//	label: DATA
//	volume_id: 0x1234abcd
type Defaults struct {
	Family   fat.Family `yaml:"family"`
	Label    string     `yaml:"label"`
	VolumeID uint32     `yaml:"volume_id"`
}

// Dir returns the fatfmt configuration directory, typically
// ~/.config/fatfmt on Linux.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fatfmt"), nil
}

// Load reads config.yaml from Dir.
func Load() (*Defaults, error) {
	dir, err := Dir()
	if err != nil {
		return &Defaults{}, nil
	}
	return LoadFile(filepath.Join(dir, "config.yaml"))
}

// LoadFile reads the defaults from path. A missing file yields empty
// defaults.
func LoadFile(path string) (*Defaults, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Defaults{}, nil
		}
		return nil, err
	}
	var d Defaults
	if err := yaml.UnmarshalStrict(b, &d); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &d, nil
}
