package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

const (
	// MaxLineSize caps a single log line. Longer lines are skipped.
	MaxLineSize = 4 * 1024 * 1024

	tailChunkSize = 64 * 1024
)

// ReadTail returns the last n well-formed records of the log at path, oldest
// first. n <= 0 reads the whole file. Lines that fail to decode are skipped;
// a missing, unreadable or empty file yields nil.
func ReadTail(path string, n int) []Record {
	if n <= 0 {
		return ReadAll(path)
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from the session metadata index
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return nil
	}

	recs, err := readTail(f, info.Size(), n)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Partial read of session log")
	}
	return recs
}

// readTail walks backwards from size in fixed chunks until n records are
// collected or the start of the file is reached.
func readTail(r io.ReaderAt, size int64, n int) ([]Record, error) {
	var (
		reversed []Record
		pending  []byte // leading fragment of the earliest chunk read so far
		skipping bool   // inside a line longer than MaxLineSize
		offset   = size
	)

	for offset > 0 && len(reversed) < n {
		chunkSize := int64(tailChunkSize)
		if chunkSize > offset {
			chunkSize = offset
		}
		offset -= chunkSize

		chunk := make([]byte, chunkSize, chunkSize+int64(len(pending)))
		if _, err := r.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return reverse(reversed), err
		}
		data := append(chunk, pending...)
		lines := bytes.Split(data, []byte{'\n'})

		end := len(lines) - 1
		if skipping {
			if len(lines) == 1 {
				continue
			}
			// the last segment is the head of the oversized line
			end--
			skipping = false
		}

		start := 0
		if offset > 0 {
			pending = append([]byte(nil), lines[0]...)
			start = 1
			if len(pending) > MaxLineSize {
				pending = nil
				skipping = true
			}
		} else {
			pending = nil
		}

		for i := end; i >= start && len(reversed) < n; i-- {
			if len(lines[i]) > MaxLineSize {
				continue
			}
			if rec, ok := decodeLine(lines[i]); ok {
				reversed = append(reversed, rec)
			}
		}
	}

	return reverse(reversed), nil
}

// ReadHead returns the first n well-formed records of the log at path.
// n <= 0 reads the whole file.
func ReadHead(path string, n int) []Record {
	f, err := os.Open(path) // #nosec G304 -- path comes from the session metadata index
	if err != nil {
		return nil
	}
	defer f.Close()

	recs, err := scan(f, n)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Partial read of session log")
	}
	return recs
}

// ReadAll returns every well-formed record of the log at path.
func ReadAll(path string) []Record {
	return ReadHead(path, 0)
}

// scan reads records forward. A line longer than MaxLineSize is discarded
// without ending the read.
func scan(r io.Reader, n int) ([]Record, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		recs     []Record
		line     []byte
		skipping bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		if !skipping {
			line = append(line, frag...)
			if len(bytes.TrimSuffix(line, []byte{'\n'})) > MaxLineSize {
				line = nil
				skipping = true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if !skipping {
			if rec, ok := decodeLine(line); ok {
				recs = append(recs, rec)
				if n > 0 && len(recs) >= n {
					return recs, nil
				}
			}
		}
		line = nil
		skipping = false

		if err != nil {
			if errors.Is(err, io.EOF) {
				return recs, nil
			}
			return recs, err
		}
	}
}

func decodeLine(raw []byte) (Record, bool) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return Record{}, false
	}
	return Decode(line)
}

func reverse(recs []Record) []Record {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs
}
