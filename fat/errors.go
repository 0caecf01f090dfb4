package fat

import "github.com/pkg/errors"

var (
	ErrVolumeTooSmall      = errors.New("volume too small")
	ErrBadClusterCount     = errors.New("cluster count out of range for file system")
	ErrUnknownFamily       = errors.New("unknown file system family")
	ErrNotAFilesystem      = errors.New("no FAT16, FAT32 or exFAT file system found")
	ErrNoPartition         = errors.New("no such partition")
	ErrLabelNotFound       = errors.New("volume label not found")
	ErrInvalidLabel        = errors.New("invalid volume label")
	ErrRootDirFull         = errors.New("root directory full")
	ErrUpcaseTableOverflow = errors.New("up-case table larger than one cluster")
	ErrBitmapOverflow      = errors.New("allocation bitmap larger than one cluster")
	ErrBadClusterChain     = errors.New("bad cluster chain")
	ErrNoFSInfo            = errors.New("volume has no FSInfo sector")
	ErrCorruptFSInfo       = errors.New("FSInfo signatures invalid")
	ErrStaleFSInfo         = errors.New("FSInfo free count unknown or out of range")

	// ErrFormatFailed matches every error returned by Format once it
	// started writing.
	ErrFormatFailed = errors.New("format failed")
)

// formatError marks an error which aborted a format midway. The device
// contents are undefined afterwards.
type formatError struct {
	err error
}

func (e *formatError) Error() string { return "format failed: " + e.err.Error() }

func (e *formatError) Unwrap() error { return e.err }

func (e *formatError) Is(target error) bool { return target == ErrFormatFailed }
