package export

import (
	"encoding/csv"
	"os"
	"sync"

	"fraudguard/internal/gesture"
)

// CSVWriter appends gesture feature vectors to a CSV file for offline model
// training. The header is written only when the file starts empty.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &CSVWriter{file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.writer.Write(gesture.CSVHeader()); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.writer.Flush()
	}
	return w, nil
}

// Append writes one feature vector. Safe for concurrent use, each row is
// flushed immediately so a crash loses at most the row in flight.
func (w *CSVWriter) Append(fv gesture.FeatureVector) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Write(fv.CSVRow()); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
