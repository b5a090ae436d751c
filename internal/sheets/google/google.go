package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"bauchermatch/internal/core"
	ports "bauchermatch/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultTabBase is the tab name, prefixed with the year.
const DefaultTabBase = "Ingresos"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabBase       string

	mu    sync.Mutex
	known map[string]bool // tab titles seen in the spreadsheet
}

// Ensure interface conformance
var (
	_ ports.SeriesWriter = (*Client)(nil)
	_ ports.SeriesReader = (*Client)(nil)
)

// Config selects the spreadsheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	CredentialsFile string
	CredentialsJSON string
	TabBase         string
}

// NewFromConfig creates a Sheets client authenticated with a service account.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials")
	}

	c, err := New(ctx, cfg.SpreadsheetID, cfg.TabBase,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return c, nil
}

// New creates a client with explicit client options.
func New(ctx context.Context, spreadsheetID, tabBase string, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if strings.TrimSpace(tabBase) == "" {
		tabBase = DefaultTabBase
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tabBase:       tabBase,
		known:         make(map[string]bool),
	}, nil
}

// SheetName returns the tab holding year.
func (c *Client) SheetName(year int) string {
	return yearPrefixedName(c.tabBase, year)
}

// WriteYearSeries overwrites the tab of series.Year with a header row of
// month abbreviations and a row of amounts, creating the tab when missing.
func (c *Client) WriteYearSeries(ctx context.Context, series core.ChartSeries) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	name := c.SheetName(series.Year)
	if err := c.ensureSheet(ctx, name); err != nil {
		return err
	}

	rng := fmt.Sprintf("'%s'!A1:N2", name)
	vr := &gsheet.ValueRange{Values: seriesRows(series)}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Exported yearly series",
		"sheet", name,
		"year", series.Year,
		"total", core.RoundAmount(series.Total()))
	return nil
}

// ReadYearSeries reads the exported series of year back.
func (c *Client) ReadYearSeries(ctx context.Context, year int) (core.ChartSeries, bool, error) {
	if c.svc == nil {
		return core.ChartSeries{}, false, errors.New("sheets service not initialized")
	}
	name := c.SheetName(year)
	exists, err := c.sheetExists(ctx, name)
	if err != nil {
		return core.ChartSeries{}, false, err
	}
	if !exists {
		return core.ChartSeries{}, false, nil
	}

	rng := fmt.Sprintf("'%s'!A1:N2", name)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return core.ChartSeries{}, false, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) == 0 {
		return core.ChartSeries{}, false, nil
	}
	series, err := parseSeriesRows(resp.Values, year)
	if err != nil {
		return core.ChartSeries{}, false, fmt.Errorf("parse %s: %w", rng, err)
	}
	return series, true, nil
}

func (c *Client) sheetExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	if c.known[name] {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.known[sh.Properties.Title] = true
		}
	}
	return c.known[name], nil
}

func (c *Client) ensureSheet(ctx context.Context, name string) error {
	exists, err := c.sheetExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}

	c.mu.Lock()
	c.known[name] = true
	c.mu.Unlock()

	slog.InfoContext(ctx, "Created sheet", "sheet", name)
	return nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
