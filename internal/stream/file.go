package stream

import (
	"bytes"
	"fmt"
	"os"
)

type fileSource struct {
	*os.File
}

func (f fileSource) Size() int64 {
	fi, err := f.Stat()
	if err != nil {
		return -1
	}
	return fi.Size()
}

// OpenFile opens a local file as a seekable stream.
func OpenFile(path string, opts ...Option) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		// Pipes and devices read fine but cannot seek.
		return New(pipeSource{f}, append([]Option{WithURL(path)}, opts...)...), nil
	}
	return New(fileSource{f}, append([]Option{WithURL(path)}, opts...)...), nil
}

type pipeSource struct {
	f *os.File
}

func (p pipeSource) Read(b []byte) (int, error) { return p.f.Read(b) }
func (p pipeSource) Close() error               { return p.f.Close() }

type memorySource struct {
	*bytes.Reader
}

func (memorySource) Close() error { return nil }

// NewMemory returns a seekable stream over data.
func NewMemory(data []byte, opts ...Option) *Stream {
	return New(memorySource{bytes.NewReader(data)}, append([]Option{WithURL("memory")}, opts...)...)
}

// NewReader returns a non-seekable stream over src.
func NewReader(src Source, opts ...Option) *Stream {
	return New(readerSource{src}, opts...)
}

type readerSource struct {
	Source
}
