// Package csv reads observations from CSV captures.
//
// Each record is index,timestamp,value[,description[,valid[,points...]]].
// An empty index takes the record's position, an empty valid field means
// true. Lines starting with # are comments.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
)

const (
	colIndex = iota
	colTimestamp
	colValue
	colDescription
	colValid
	colPoints

	minColumns = colValue + 1
)

// Reader reads observations from a CSV source.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	position  int
	skipped   atomic.Int64

	mu  sync.Mutex
	err error
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// NewReader opens filename for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, file, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// FromReader reads CSV records from src. Close does not close src.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts)
}

func newReader(src io.Reader, closer io.Closer, opts []Option) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	r := &Reader{
		closer:    closer,
		reader:    cr,
		hasHeader: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read header: %w", err)
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Skipped returns the number of malformed records dropped so far.
func (r *Reader) Skipped() int {
	return int(r.skipped.Load())
}

// Read returns every well-formed record.
func (r *Reader) Read() ([]analysis.Observation, error) {
	var data []analysis.Observation

	for {
		obs, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data = append(data, obs)
	}

	return data, nil
}

// Stream returns a channel of observations for incremental processing.
// Reading stops at the first I/O error, which Err then reports.
func (r *Reader) Stream(ctx context.Context) (<-chan analysis.Observation, error) {
	out := make(chan analysis.Observation, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			obs, err := r.next()
			if err != nil {
				if err != io.EOF {
					r.setErr(err)
				}
				return
			}

			select {
			case out <- obs:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Err returns the I/O error that ended the stream, or nil at end of input.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// next returns the next well-formed record, counting and skipping the rest.
func (r *Reader) next() (analysis.Observation, error) {
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			return analysis.Observation{}, io.EOF
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			r.skipped.Add(1)
			continue
		}
		if err != nil {
			return analysis.Observation{}, err
		}

		pos := r.position
		r.position++

		obs, err := parseRecord(record, pos)
		if err != nil {
			r.skipped.Add(1)
			continue
		}
		return obs, nil
	}
}

// parseRecord converts one record; pos is its position among data records.
func parseRecord(record []string, pos int) (analysis.Observation, error) {
	if len(record) < minColumns {
		return analysis.Observation{}, fmt.Errorf("want at least %d columns, got %d", minColumns, len(record))
	}

	obs := analysis.Observation{
		Index:     pos,
		Timestamp: strings.TrimSpace(record[colTimestamp]),
		Valid:     true,
	}

	if s := strings.TrimSpace(record[colIndex]); s != "" {
		idx, err := strconv.Atoi(s)
		if err != nil {
			return analysis.Observation{}, fmt.Errorf("index: %w", err)
		}
		obs.Index = idx
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(record[colValue]), 64)
	if err != nil {
		return analysis.Observation{}, fmt.Errorf("value: %w", err)
	}
	obs.Value = v

	if len(record) > colDescription {
		obs.Description = record[colDescription]
	}

	if len(record) > colValid {
		if s := strings.TrimSpace(record[colValid]); s != "" {
			valid, err := strconv.ParseBool(s)
			if err != nil {
				return analysis.Observation{}, fmt.Errorf("valid: %w", err)
			}
			obs.Valid = valid
		}
	}

	for _, field := range record[min(len(record), colPoints):] {
		p, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return analysis.Observation{}, fmt.Errorf("point: %w", err)
		}
		obs.Points = append(obs.Points, p)
	}

	return obs, nil
}
