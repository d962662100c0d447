package cda

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/cavesweep/internal/monitoring"
)

// maxMeasuredFileSize caps measured-data files.
const maxMeasuredFileSize = 32 << 20

// ErrNoProxyColumns is returned when no header resolves to a proxy.
var ErrNoProxyColumns = errors.New("no proxy columns found")

// MeasuredDataLoadError reports a measured-data source that cannot be used.
// It is returned before any run starts.
type MeasuredDataLoadError struct {
	Source string
	Err    error
}

func (e *MeasuredDataLoadError) Error() string {
	return fmt.Sprintf("load measured data %s: %v", e.Source, e.Err)
}

func (e *MeasuredDataLoadError) Unwrap() error {
	return e.Err
}

// MeasuredRow is one point of the measured series. A proxy missing from
// Values was not measured for this row.
type MeasuredRow struct {
	Index  int
	Age    float64
	HasAge bool
	Values map[Proxy]float64
}

// MeasuredData is a parsed measured-data source.
type MeasuredData struct {
	Source string
	// Columns maps each proxy to the header it was read from.
	Columns   map[Proxy]string
	AgeColumn string
	Rows      []MeasuredRow
	// BadCells counts values that could not be parsed and were skipped.
	BadCells int
}

// Proxies returns the measured proxies in Proxies order.
func (d *MeasuredData) Proxies() []Proxy {
	var out []Proxy
	for _, p := range Proxies {
		if _, ok := d.Columns[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// LoadMeasuredFile reads a CSV measured-data file.
func LoadMeasuredFile(path string) (*MeasuredData, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".txt" {
		return nil, &MeasuredDataLoadError{Source: path, Err: fmt.Errorf("unsupported file extension %q (expected .csv)", ext)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &MeasuredDataLoadError{Source: path, Err: err}
	}
	if info.Size() > maxMeasuredFileSize {
		return nil, &MeasuredDataLoadError{Source: path, Err: fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxMeasuredFileSize)}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &MeasuredDataLoadError{Source: path, Err: err}
	}
	defer f.Close()
	return LoadMeasured(f, path)
}

// LoadMeasured parses measured data from r. The first record is the header.
// For each proxy the first column in header order that resolves to it is
// used. Unparseable cells are skipped for that proxy only.
func LoadMeasured(r io.Reader, source string) (*MeasuredData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MeasuredDataLoadError{Source: source, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &MeasuredDataLoadError{Source: source, Err: err}
	}

	data := &MeasuredData{Source: source, Columns: make(map[Proxy]string)}
	cols := make(map[int]Proxy)
	ageCol := -1
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if p, ok := ParseProxy(h); ok {
			if _, seen := data.Columns[p]; !seen {
				data.Columns[p] = h
				cols[i] = p
			}
			continue
		}
		if ageCol < 0 && isAgeHeader(h) {
			ageCol = i
			data.AgeColumn = h
		}
	}
	if len(cols) == 0 {
		return nil, &MeasuredDataLoadError{Source: source, Err: fmt.Errorf("%w in header %v", ErrNoProxyColumns, header)}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MeasuredDataLoadError{Source: source, Err: err}
		}

		row := MeasuredRow{Index: len(data.Rows), Values: make(map[Proxy]float64, len(cols))}
		if ageCol >= 0 && ageCol < len(rec) {
			if v, ok, _ := parseCell(rec[ageCol]); ok {
				row.Age, row.HasAge = v, true
			}
		}
		for i, p := range cols {
			if i >= len(rec) {
				continue
			}
			v, ok, bad := parseCell(rec[i])
			if bad {
				data.BadCells++
				monitoring.Logf("[cda] WARNING: %s line %d: column %q: unparseable value %q skipped",
					source, line, header[i], rec[i])
				continue
			}
			if ok {
				row.Values[p] = v
			}
		}
		data.Rows = append(data.Rows, row)
	}

	monitoring.Logf("[cda] Loaded %d measured rows from %s (proxies %v)", len(data.Rows), source, data.Proxies())
	return data, nil
}

// parseCell parses a numeric cell. Blank and "nan" cells are missing, not
// bad.
func parseCell(s string) (v float64, ok bool, bad bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return 0, false, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, true
	}
	return v, true, false
}
