// Package catalog loads the district reference data behind the location
// drill hierarchy from uploaded CSV or XLSX files.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/repository"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Column labels accepted in catalog uploads, normalised to lower snake case.
var (
	codeAliases   = map[string]bool{"code": true, "district": true, "district_code": true}
	nameAliases   = map[string]bool{"name": true, "district_name": true, "label": true}
	regionAliases = map[string]bool{"region": true, "segment": true, "market_segment": true}
)

// Service imports district catalogs into the repository.
type Service struct {
	repo repository.CatalogRepository
}

// NewService creates a new catalog service.
func NewService(repo repository.CatalogRepository) *Service {
	return &Service{repo: repo}
}

// Summary reports import level metrics.
type Summary struct {
	TotalRows int      `json:"totalRows"`
	Loaded    int      `json:"loaded"`
	Skipped   int      `json:"skipped"`
	Regions   []string `json:"regions"`
	Errors    []string `json:"errors,omitempty"`
}

// Import reads the uploaded file and replaces the whole district catalog
// with its contents. Rows without a usable code or region are skipped and
// reported, not fatal.
func (s *Service) Import(ctx context.Context, fileName string, data io.Reader) (Summary, error) {
	summary := Summary{Regions: []string{}}

	if data == nil {
		return summary, errors.New("data reader is required")
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	records, err := parseTable(fileName, payload)
	if err != nil {
		return summary, err
	}

	headerIdx := -1
	for idx, row := range records {
		if len(cleanRow(row)) > 0 {
			headerIdx = idx
			break
		}
	}
	if headerIdx < 0 {
		return summary, errors.New("no header row detected")
	}

	columns := locateColumns(records[headerIdx])
	if columns.code < 0 {
		return summary, errors.New("no district code column detected")
	}
	if columns.region < 0 {
		return summary, errors.New("no region column detected")
	}

	districts := []domain.District{}
	seen := map[string]bool{}
	for idx, row := range records[headerIdx+1:] {
		if len(cleanRow(row)) == 0 {
			continue
		}
		summary.TotalRows++
		rowNumber := headerIdx + idx + 2 // 1-based, counting the header

		code := strings.ToUpper(strings.TrimSpace(cell(row, columns.code)))
		if code == "" {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: missing district code", rowNumber))
			continue
		}
		if seen[code] {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: duplicate district code %s", rowNumber, code))
			continue
		}

		region := strings.ToUpper(strings.TrimSpace(cell(row, columns.region)))
		if region == "" {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: missing region for %s", rowNumber, code))
			continue
		}

		name := strings.TrimSpace(cell(row, columns.name))
		if name == "" {
			name = code
		}

		seen[code] = true
		districts = append(districts, domain.District{Code: code, Name: name, Region: region})
		summary.Loaded++
	}

	if len(districts) == 0 {
		return summary, errors.New("no usable district rows found")
	}

	sort.Slice(districts, func(i, j int) bool { return districts[i].Code < districts[j].Code })

	if err := s.repo.ReplaceDistricts(ctx, districts); err != nil {
		return summary, fmt.Errorf("failed to store catalog: %w", err)
	}

	regionSet := map[string]bool{}
	for _, d := range districts {
		regionSet[d.Region] = true
	}
	for region := range regionSet {
		summary.Regions = append(summary.Regions, region)
	}
	sort.Strings(summary.Regions)

	return summary, nil
}

type columnIndexes struct {
	code   int
	name   int
	region int
}

func locateColumns(headerRow []string) columnIndexes {
	columns := columnIndexes{code: -1, name: -1, region: -1}
	for idx, raw := range headerRow {
		label := normalizeLabel(raw)
		switch {
		case codeAliases[label] && columns.code < 0:
			columns.code = idx
		case nameAliases[label] && columns.name < 0:
			columns.name = idx
		case regionAliases[label] && columns.region < 0:
			columns.region = idx
		}
	}
	return columns
}

func normalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, ".", "_")
	label = strings.ReplaceAll(label, "-", "_")
	return strings.Trim(label, "_")
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			cleaned = append(cleaned, value)
		}
	}
	return cleaned
}

func parseTable(fileName string, payload []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}
