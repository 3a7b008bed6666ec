package data

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	perrors "roadsafety/internal/errors"
)

// CSVReader decodes delimited text, trying each configured encoding in turn.
type CSVReader struct {
	filename string
	opts     LoadOptions
}

func NewCSVReader(filename string, opts LoadOptions) *CSVReader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
		if strings.EqualFold(filepath.Ext(filename), ".tsv") {
			opts.Delimiter = '\t'
		}
	}
	if len(opts.Encodings) == 0 {
		opts.Encodings = DefaultEncodings
	}
	return &CSVReader{filename: filename, opts: opts}
}

func (cr *CSVReader) Read() (*Table, error) {
	raw, err := os.ReadFile(cr.filename)
	if err != nil {
		return nil, perrors.NewLoadError(cr.filename, err)
	}

	var lastErr error
	for _, name := range cr.opts.Encodings {
		text, err := decode(raw, name)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", name, err)
			cr.opts.logger().Debug("encoding rejected", "path", cr.filename, "encoding", name, "error", err)
			continue
		}
		t, err := cr.parse(text)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", name, err)
			cr.opts.logger().Debug("parse failed", "path", cr.filename, "encoding", name, "error", err)
			continue
		}
		cr.opts.logger().Info("decoded delimited file", "path", cr.filename, "encoding", name)
		return t, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no encodings configured")
	}
	return nil, perrors.NewLoadError(cr.filename, lastErr)
}

func (cr *CSVReader) parse(text []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = cr.opts.Delimiter
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	return buildTable(records[0], records[1:], cr.opts)
}

func decode(raw []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("invalid utf-8 byte sequence")
		}
		return bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")), nil
	}
	return enc.NewDecoder().Bytes(raw)
}

// lookupEncoding returns nil for utf-8, which needs validation only.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
