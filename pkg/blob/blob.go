// Package blob turns oneBLOB elements into file payloads and back.
//
// A BLOB format is a file suffix chain such as ".fits" or ".fits.z". A
// trailing ".z" marks a zlib-compressed payload; the size attribute always
// counts the uncompressed bytes.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// CompressedSuffix marks a zlib-compressed BLOB format.
const CompressedSuffix = ".z"

// MaxDecompressedSize bounds a decompressed payload whose size attribute
// is missing or zero (1 GB).
const MaxDecompressedSize = 1 << 30

// BLOB errors.
var (
	ErrNotBLOB      = errors.New("element is not a oneBLOB")
	ErrSizeMismatch = errors.New("BLOB size mismatch")
	ErrEmptyFormat  = errors.New("empty BLOB format")
	ErrTooLarge     = errors.New("decompressed BLOB exceeds its limit")
)

// Format is a parsed BLOB format suffix chain.
type Format struct {
	// Raw is the format as sent, e.g. ".fits.z".
	Raw string

	// Ext is the file extension of the uncompressed payload, e.g. ".fits".
	Ext string

	// Compressed reports a trailing ".z".
	Compressed bool
}

// ParseFormat parses a format attribute. A missing leading dot is added.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return Format{}, ErrEmptyFormat
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	f := Format{Raw: s, Ext: s}
	if strings.HasSuffix(s, CompressedSuffix) {
		f.Compressed = true
		f.Ext = strings.TrimSuffix(s, CompressedSuffix)
	}
	return f, nil
}

// String returns the raw format.
func (f Format) String() string {
	return f.Raw
}

// Payload is a decoded BLOB.
type Payload struct {
	// Name is the element name.
	Name string

	// Format is the BLOB format as received.
	Format Format

	// Data is the uncompressed payload.
	Data []byte
}

// FromElement decodes a oneBLOB element, decompressing ".z" payloads and
// checking the declared size when present.
func FromElement(e *wire.Element) (*Payload, error) {
	if e == nil || e.Tag() != wire.TagOneBLOB {
		return nil, ErrNotBLOB
	}
	format, err := ParseFormat(e.AttrString("iformat"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}

	// Zero size is common from drivers that do not fill it in.
	declared := 0
	if size, err := e.AttrFloat("size"); err == nil && size > 0 {
		declared = int(size)
	}

	data := e.Bytes()
	if format.Compressed {
		if data, err = Decompress(data, declared); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}

	if declared > 0 && declared != len(data) {
		return nil, fmt.Errorf("%s: %w: declared %d bytes, got %d", e.Name(), ErrSizeMismatch, declared, len(data))
	}

	return &Payload{Name: e.Name(), Format: format, Data: data}, nil
}

// Element builds a oneBLOB element for a newBLOBVector. When compress is
// set the payload is zlib-compressed and ".z" is appended to the format.
func Element(name string, data []byte, format string, compress bool) (*wire.Element, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	payload := data
	raw := f.Ext
	if compress {
		if payload, err = Compress(data); err != nil {
			return nil, err
		}
		raw += CompressedSuffix
	}
	return wire.NewElement(wire.TagOneBLOB, payload, wire.Attrs{
		"name":    name,
		"size":    float64(len(data)),
		"iformat": raw,
	})
}

// Compress zlib-compresses data at the default level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Output longer than limit bytes fails with
// ErrTooLarge; a limit of zero or less means MaxDecompressedSize.
func Decompress(data []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxDecompressedSize
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("zlib decompress: %w: more than %d bytes", ErrTooLarge, limit)
	}
	return out, nil
}

// FileName returns base with the payload's extension, unless base already
// ends with it.
func (p *Payload) FileName(base string) string {
	if strings.EqualFold(filepath.Ext(base), p.Format.Ext) {
		return base
	}
	return base + p.Format.Ext
}

// Save writes the payload to base plus its extension and returns the path.
func (p *Payload) Save(base string) (string, error) {
	path := p.FileName(base)
	if err := os.WriteFile(path, p.Data, 0o644); err != nil {
		return "", fmt.Errorf("save BLOB: %w", err)
	}
	return path, nil
}

// WriteTo writes the payload to w.
func (p *Payload) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Data)
	return int64(n), err
}
