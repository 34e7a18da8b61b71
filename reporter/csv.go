package reporter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const csvHeader = "timestamp,price_a,price_b,profit_a_to_b,profit_b_to_a,difference_percent,loan_amount_usd\n"

// CSVSink appends audit records to a headered CSV file.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewCSVSink opens (or creates) the CSV file at path, writing the
// header on first creation.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV log: %w", err)
	}
	if fresh {
		if _, err := file.WriteString(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	return &CSVSink{file: file}, nil
}

// Append writes one record row.
func (s *CSVSink) Append(rec *Record) error {
	row := fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s\n",
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.PriceA.StringFixed(2),
		rec.PriceB.StringFixed(2),
		rec.ProfitAToB.StringFixed(2),
		rec.ProfitBToA.StringFixed(2),
		rec.SpreadPercent.StringFixed(3),
		rec.LoanAmount.StringFixed(0),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.WriteString(row); err != nil {
		return fmt.Errorf("failed to append CSV row: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
