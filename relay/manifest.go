package relay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/franksops/filerelay/engine"
)

// manifestColumns are the columns a manifest may carry. Only handle is required.
var manifestColumns = []string{"handle", "filename", "size", "kind"}

// ReadManifest parses a CSV manifest with a header row naming some of
// handle, filename, size and kind. Sizes accept humanized values like 12MB.
func ReadManifest(r io.Reader) ([]engine.FileReference, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["handle"]; !ok {
		return nil, fmt.Errorf("manifest header %v has no handle column (want some of %v)", header, manifestColumns)
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var refs []engine.FileReference
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return refs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}

		handle := field(record, "handle")
		if handle == "" {
			continue
		}
		size, err := parseSize(field(record, "size"))
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		refs = append(refs, engine.FileReference{
			Handle:       handle,
			Filename:     field(record, "filename"),
			DeclaredSize: size,
			Kind:         engine.ParseMediaKind(field(record, "kind")),
		})
	}
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}
