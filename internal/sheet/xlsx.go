package sheet

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSX is a Store over a local workbook. Every write saves the file so a
// crash loses at most the row in flight.
type XLSX struct {
	mu    sync.Mutex
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
}

// OpenXLSX opens the workbook at path. An empty worksheet name selects the
// first sheet.
func OpenXLSX(path, worksheet string) (*XLSX, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sh, err := getSheet(f, worksheet)
	if err != nil {
		return nil, err
	}
	return &XLSX{path: path, file: f, sheet: sh}, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sh, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// ReadColumn implements Store.
func (x *XLSX) ReadColumn(_ context.Context, col int) ([]string, error) {
	if err := checkPos(1, col); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	values := make([]string, len(x.sheet.Rows))
	for i, row := range x.sheet.Rows {
		if row != nil && col-1 < len(row.Cells) && row.Cells[col-1] != nil {
			values[i] = row.Cells[col-1].String()
		}
	}
	return trimTrailing(values), nil
}

// ReadCell implements Store.
func (x *XLSX) ReadCell(_ context.Context, row, col int) (string, error) {
	if err := checkPos(row, col); err != nil {
		return "", err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if row-1 >= len(x.sheet.Rows) {
		return "", nil
	}
	r := x.sheet.Rows[row-1]
	if r == nil || col-1 >= len(r.Cells) || r.Cells[col-1] == nil {
		return "", nil
	}
	return r.Cells[col-1].String(), nil
}

// WriteCell implements Store.
func (x *XLSX) WriteCell(_ context.Context, row, col int, value string) error {
	if err := checkPos(row, col); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.sheet.Cell(row-1, col-1).SetString(value)
	if err := x.file.Save(x.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", x.path)
	}
	return nil
}

// Close implements Store.
func (x *XLSX) Close() error {
	return nil
}
