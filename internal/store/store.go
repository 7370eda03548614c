// Package store records samples to CSV files rotated daily and reads
// them back for the history viewer. Files live in ~/.sensorlink/ unless
// another directory is configured.
package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/telemetry"
)

const (
	dirName    = ".sensorlink"
	timeLayout = "2006-01-02T15:04:05"
	fileLayout = "2006-01-02"
)

var header = []string{"time", "cpu", "gpu", "channel", "delivered"}

// DiskStore appends one row per sample to YYYY-MM-DD.csv:
//
//	time,cpu,gpu,channel,delivered
//
// An unresolved sensor is written as an empty field.
type DiskStore struct {
	dir string
	log *zap.Logger

	mu      sync.Mutex
	current *os.File
	writer  *csv.Writer
	curDate string
}

// Row is a single line of a CSV file.
type Row struct {
	Time      time.Time
	CPU       int
	CPUValid  bool
	GPU       int
	GPUValid  bool
	Channel   string
	Delivered bool
}

// New creates a store in dir, or in DataDir() when dir is empty, creating
// the directory if needed.
func New(dir string, logger *zap.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = DataDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &DiskStore{dir: dir, log: logger.Named("store")}, nil
}

// Dir returns the directory the store writes to.
func (d *DiskStore) Dir() string { return d.dir }

// Observe writes s. Write errors are logged; recording never stops the
// loop.
func (d *DiskStore) Observe(_ context.Context, s telemetry.Sample) {
	if err := d.Write(s); err != nil {
		d.log.Warn("unable to record sample", zap.Error(err))
	}
}

// Write appends s to the file for its day.
func (d *DiskStore) Write(s telemetry.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	date := s.Time.Format(fileLayout)
	if d.curDate != date || d.current == nil {
		d.closeLocked()
		path := filepath.Join(d.dir, date+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		d.current = f
		d.writer = csv.NewWriter(f)
		d.curDate = date

		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			if err := d.writer.Write(header); err != nil {
				return err
			}
		}
	}

	err := d.writer.Write([]string{
		s.Time.Format(timeLayout),
		temp(s.Reading.CPU, s.Reading.CPUValid),
		temp(s.Reading.GPU, s.Reading.GPUValid),
		s.Channel,
		strconv.FormatBool(s.Delivered()),
	})
	if err != nil {
		return err
	}
	d.writer.Flush()
	return d.writer.Error()
}

func temp(v int, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.Itoa(v)
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DiskStore) closeLocked() error {
	if d.writer != nil {
		d.writer.Flush()
		d.writer = nil
	}
	if d.current == nil {
		return nil
	}
	err := d.current.Close()
	d.current = nil
	return err
}

// ListDays returns the recorded dates in dir, newest first.
func ListDays(dir string) ([]string, error) {
	if dir == "" {
		dir = DataDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		day := strings.TrimSuffix(name, ".csv")
		if _, err := time.Parse(fileLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// LoadDay reads every row recorded on day (YYYY-MM-DD) in dir.
func LoadDay(dir, day string) ([]Row, error) {
	if dir == "" {
		dir = DataDir()
	}
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads every row of a CSV file. Malformed rows are skipped.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		if len(rec) < len(header) {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, rec[0], time.Local)
		if err != nil {
			continue
		}
		row := Row{Time: t, Channel: rec[3]}
		row.CPU, row.CPUValid = parseTemp(rec[1])
		row.GPU, row.GPUValid = parseTemp(rec[2])
		row.Delivered, _ = strconv.ParseBool(rec[4])
		rows = append(rows, row)
	}
	return rows, nil
}

func parseTemp(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DataDir returns the default data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}
