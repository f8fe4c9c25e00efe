package canlog

import (
	"errors"
	"fmt"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/checkpoint"
)

const (
	DefaultPrefix = "DLGTST"
	DefaultExt    = "DLG"

	maxPrefix = 6
)

var ErrNoFreeName = errors.New("all log file names are in use")

// NextName returns the first name of the form PREFIXxx which has no entry
// with the extension ext in the directory starting at cluster. xx counts up
// in upper case hex from 00 to FF.
func NextName(finder Finder, cluster uint32, prefix, ext string) (string, error) {
	if len(prefix) > maxPrefix {
		return "", checkpoint.From(fmt.Errorf("%w: prefix %q longer than %d", fatlog.ErrInvalidName, prefix, maxPrefix))
	}

	for i := 0; i <= 0xFF; i++ {
		name := fmt.Sprintf("%s%02X", prefix, i)
		_, err := finder.FindEntry(cluster, name, ext)
		if errors.Is(err, fatlog.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", checkpoint.From(fmt.Errorf("%w: %sxx.%s", ErrNoFreeName, prefix, ext))
}
