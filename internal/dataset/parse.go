package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	colRegion    = "state"
	colRegionAlt = "region"
	colPrice     = "price"
	colTimestamp = "timestamp"
)

type columns struct {
	region, price, timestamp int
}

// parse reads header-first CSV. Any invalid row rejects the whole input.
func parse(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrMalformed)
		}
		return nil, readError(err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}
		line, _ := cr.FieldPos(0)
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func locateColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	region, ok := idx[colRegion]
	if !ok {
		region, ok = idx[colRegionAlt]
	}
	if !ok {
		return columns{}, fmt.Errorf("%w: missing %q column", ErrMalformed, colRegion)
	}
	price, ok := idx[colPrice]
	if !ok {
		return columns{}, fmt.Errorf("%w: missing %q column", ErrMalformed, colPrice)
	}
	ts, ok := idx[colTimestamp]
	if !ok {
		return columns{}, fmt.Errorf("%w: missing %q column", ErrMalformed, colTimestamp)
	}
	return columns{region: region, price: price, timestamp: ts}, nil
}

func parseRow(row []string, cols columns) (Record, error) {
	region := strings.TrimSpace(row[cols.region])
	if region == "" {
		return Record{}, errors.New("region is empty")
	}
	ts := strings.TrimSpace(row[cols.timestamp])
	if ts == "" {
		return Record{}, errors.New("timestamp is empty")
	}
	raw := strings.TrimSpace(row[cols.price])
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return Record{}, fmt.Errorf("price %q is not a finite number", raw)
	}
	return Record{Region: region, Price: price, Timestamp: ts}, nil
}

// readError classifies csv syntax errors as malformed content and leaves
// everything else as an I/O failure.
func readError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %v", ErrMalformed, perr)
	}
	return fmt.Errorf("read dataset: %w", err)
}
