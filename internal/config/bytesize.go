package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ByteSize is a byte count written as a human string such as "512MiB" or
// "1 GB" in the config file and on the command line.
type ByteSize int64

// String renders with binary units, e.g. "1.0 GiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Set parses s. It makes *ByteSize a pflag.Value.
func (b *ByteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > 1<<62 {
		return fmt.Errorf("byte size %q too large", s)
	}
	*b = ByteSize(n)
	return nil
}

// Type names the flag value type in help output.
func (b *ByteSize) Type() string { return "bytes" }

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}
