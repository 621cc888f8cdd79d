package karma

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ReadFile decodes the multi-array stored at path with default limits.
func ReadFile(path string) (*MultiArray, error) {
	return ReadFileOptions(path, ReaderOptions{})
}

// ReadFileOptions decodes the multi-array stored at path under opts. The file is
// mapped read-only while it is decoded; the returned multi-array owns freshly
// allocated memory and stays valid after the mapping is released. Bytes after
// the multi-array are a format error.
func ReadFileOptions(path string, opts ReaderOptions) (*MultiArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < int64(len(Magic)) {
		return nil, fmt.Errorf("%w: %s is too short to hold a multi-array", ErrFormat, path)
	}
	if size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s is too large to map", ErrFormat, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Fallback for filesystems that cannot be mapped.
		return readStream(bufio.NewReader(f), opts)
	}
	defer func() { _ = unix.Munmap(data) }()

	return decode(data, opts)
}

// readStream reads one multi-array from r and requires r to end right after it.
func readStream(r io.Reader, opts ReaderOptions) (*MultiArray, error) {
	ma, err := NewReader(r, opts).ReadMultiArray()
	if err != nil {
		return nil, err
	}
	var extra [1]byte
	n, err := io.ReadFull(r, extra[:])
	if n != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after multi-array", ErrFormat)
	}
	if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return ma, nil
}

// WriteFile encodes ma to path. The file is written next to its destination and
// renamed into place, so a failed write never leaves a truncated file behind.
func WriteFile(path string, ma *MultiArray) error {
	var buf bytes.Buffer
	if err := WriteMultiArray(&buf, ma); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return cleanup(fmt.Errorf("%w: %w", ErrStreamIO, err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
