package feedback

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Open returns the store for the configured backend ("csv" or "sqlite").
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "csv":
		return NewCSVStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported feedback backend: %s", backend)
	}
}

// WriteParquet writes records as a parquet file with columns original,
// corrected and confidence.
func WriteParquet(w io.Writer, records []Record) error {
	pw := parquet.NewGenericWriter[Record](w)
	if _, err := pw.Write(records); err != nil {
		pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"original", "corrected", "confidence"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Original, rec.Corrected, rec.Confidence}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
