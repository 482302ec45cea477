// Package gzcodec compresses and decompresses recorded market files in
// place. Output is written to a temp file in the same directory and renamed,
// so a crash never leaves a partial file under the final name.
package gzcodec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const Suffix = ".gz"

type Codec struct {
	level int
}

// New returns a codec with a fixed compression level (1-9, the recorder's
// default is 6).
func New(level int) (*Codec, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range", level)
	}

	return &Codec{level: level}, nil
}

func IsCompressed(name string) bool {
	return strings.HasSuffix(name, Suffix)
}

// Compress writes path.gz beside path and returns the new path. Unless keep
// is set, the source is removed after the compressed file is in place.
func (c *Codec) Compress(path string, keep bool) (string, error) {
	if IsCompressed(path) {
		return "", fmt.Errorf("%s is already compressed", path)
	}

	dst := path + Suffix

	if err := c.write(path, dst, func(w io.Writer, r io.Reader) error {
		gz, err := gzip.NewWriterLevel(w, c.level)
		if err != nil {
			return err
		}

		if _, err := io.Copy(gz, r); err != nil {
			return err
		}

		return gz.Close()
	}); err != nil {
		return "", err
	}

	if !keep {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing original %s: %w", path, err)
		}
	}

	return dst, nil
}

// Decompress is the inverse of Compress. Unless keep is set, the .gz file is
// removed after the restored file is in place.
func (c *Codec) Decompress(path string, keep bool) (string, error) {
	if !IsCompressed(path) {
		return "", fmt.Errorf("%s has no %s suffix", path, Suffix)
	}

	dst := strings.TrimSuffix(path, Suffix)

	if err := c.write(path, dst, func(w io.Writer, r io.Reader) error {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gz.Close()

		_, err = io.Copy(w, gz)

		return err
	}); err != nil {
		return "", err
	}

	if !keep {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing %s: %w", path, err)
		}
	}

	return dst, nil
}

func (c *Codec) write(src, dst string, transform func(io.Writer, io.Reader) error) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}

	if err := transform(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("transforming %s: %w", src, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	return nil
}
