package mailchimp

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

const maxArchiveEntry = 64 * 1024 * 1024

// unpackResults reads a gzipped tar of JSON files, each holding a list of results
func unpackResults(archive []byte) ([]batchResult, error) {
	zr, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("opening result archive: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	var results []batchResult
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading result archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".json") {
			continue
		}
		if hdr.Size > maxArchiveEntry {
			return nil, fmt.Errorf("result file %s is too large (%d bytes)", path.Base(hdr.Name), hdr.Size)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxArchiveEntry))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}

		var entries []batchResult
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", hdr.Name, err)
		}
		results = append(results, entries...)
	}
}
