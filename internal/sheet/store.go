// Package sheet is the tabular store the enrichment sweep reads identities
// from and writes contact data to. Rows and columns are 1-based.
package sheet

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/resilience"
)

// Store is a single worksheet.
type Store interface {
	// ReadColumn returns the column's values from row 1 down to the last
	// non-empty cell.
	ReadColumn(ctx context.Context, col int) ([]string, error)
	// ReadCell returns one cell's value, empty when the cell is blank.
	ReadCell(ctx context.Context, row, col int) (string, error)
	// WriteCell overwrites one cell.
	WriteCell(ctx context.Context, row, col int, value string) error
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	Driver          string  `mapstructure:"driver"` // "google" or "xlsx"
	SpreadsheetID   string  `mapstructure:"spreadsheet_id"`
	Worksheet       string  `mapstructure:"worksheet"`
	CredentialsFile string  `mapstructure:"credentials_file"`
	Path            string  `mapstructure:"path"` // xlsx workbook
	WriteRPS        float64 `mapstructure:"write_rps"`

	// Retry governs transient API failures. Zero MaxAttempts uses
	// resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig `mapstructure:"-"`
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "google", "":
		return NewGoogle(ctx, cfg)
	case "xlsx":
		return OpenXLSX(cfg.Path, cfg.Worksheet)
	default:
		return nil, eris.Errorf("sheet: unknown driver %q", cfg.Driver)
	}
}

func checkPos(row, col int) error {
	if row < 1 || col < 1 {
		return eris.Errorf("sheet: invalid cell position row=%d col=%d", row, col)
	}
	return nil
}

// trimTrailing drops empty values at the end of a column.
func trimTrailing(values []string) []string {
	n := len(values)
	for n > 0 && values[n-1] == "" {
		n--
	}
	return values[:n]
}
