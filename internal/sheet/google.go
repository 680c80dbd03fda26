package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/sells-group/contact-enricher/internal/resilience"
)

// Google is a Store over one worksheet of a Google spreadsheet. Writes are
// throttled to stay inside the Sheets per-user quota.
type Google struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	worksheet     string
	limiter       *rate.Limiter
	retry         resilience.RetryConfig
}

// NewGoogle connects with the service account in cfg.CredentialsFile. Extra
// client options are appended after the credentials option.
func NewGoogle(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Google, error) {
	if cfg.SpreadsheetID == "" {
		return nil, eris.New("sheets: spreadsheet id is required")
	}

	clientOpts := make([]option.ClientOption, 0, len(opts)+2)
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(sheets.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create service")
	}

	g := &Google{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
		retry:         cfg.Retry,
	}
	if g.retry.MaxAttempts == 0 {
		g.retry = resilience.DefaultRetryConfig()
	}
	if cfg.WriteRPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.WriteRPS), max(int(cfg.WriteRPS), 1))
	}
	g.retry.ShouldRetry = isRetryableAPIError
	return g, nil
}

// ReadColumn implements Store.
func (g *Google) ReadColumn(ctx context.Context, col int) ([]string, error) {
	if err := checkPos(1, col); err != nil {
		return nil, err
	}
	letter := ColumnLetter(col)
	vr, err := g.get(ctx, g.a1(letter+":"+letter), "sheets: read column")
	if err != nil {
		return nil, err
	}

	var values []string
	if len(vr.Values) > 0 {
		values = make([]string, len(vr.Values[0]))
		for i, v := range vr.Values[0] {
			values[i] = fmt.Sprint(v)
		}
	}
	return trimTrailing(values), nil
}

// ReadCell implements Store.
func (g *Google) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := checkPos(row, col); err != nil {
		return "", err
	}
	vr, err := g.get(ctx, g.a1(cellRef(row, col)), "sheets: read cell")
	if err != nil {
		return "", err
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprint(vr.Values[0][0]), nil
}

// WriteCell implements Store.
func (g *Google) WriteCell(ctx context.Context, row, col int, value string) error {
	if err := checkPos(row, col); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sheets: rate limit wait")
		}
	}

	rng := g.a1(cellRef(row, col))
	body := &sheets.ValueRange{Values: [][]any{{value}}}
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("sheets", "write cell")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		_, err := g.values.Update(g.spreadsheetID, rng, body).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "sheets: write cell %s", rng)
	}
	return nil
}

// Close implements Store.
func (g *Google) Close() error {
	return nil
}

func (g *Google) get(ctx context.Context, rng, action string) (*sheets.ValueRange, error) {
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("sheets", action)
	vr, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*sheets.ValueRange, error) {
		return g.values.Get(g.spreadsheetID, rng).
			MajorDimension("COLUMNS").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, eris.Wrapf(err, "%s %s", action, rng)
	}
	return vr, nil
}

// a1 qualifies ref with the worksheet name, quoting it for names with
// spaces or non-ASCII characters.
func (g *Google) a1(ref string) string {
	if g.worksheet == "" {
		return ref
	}
	return "'" + strings.ReplaceAll(g.worksheet, "'", "''") + "'!" + ref
}

func cellRef(row, col int) string {
	return fmt.Sprintf("%s%d", ColumnLetter(col), row)
}

// ColumnLetter converts a 1-based column index to its A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

func isRetryableAPIError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.Code)
	}
	return resilience.IsTransient(err)
}
