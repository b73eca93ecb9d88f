package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/dashlens/internal/repository"
)

func TestServiceImportReplacesCatalog(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	data := `District Code,District Name,Market Segment
d01,Raffles Place,ccr
D09,Orchard,CCR
D15,East Coast,rcr
D19,Serangoon,OCR
`
	summary, err := service.Import(context.Background(), "districts.csv", strings.NewReader(data))
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	if summary.TotalRows != 4 || summary.Loaded != 4 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Regions) != 3 {
		t.Fatalf("expected 3 regions, got %v", summary.Regions)
	}

	districts, err := repo.ListDistricts(context.Background())
	if err != nil {
		t.Fatalf("list districts: %v", err)
	}
	if len(districts) != 4 {
		t.Fatalf("expected 4 districts stored, got %d", len(districts))
	}
	if districts[0].Code != "D01" || districts[0].Region != "CCR" {
		t.Fatalf("expected codes and regions upper-cased, got %+v", districts[0])
	}

	rcr, err := repo.ListDistrictsByRegion(context.Background(), "RCR")
	if err != nil {
		t.Fatalf("list by region: %v", err)
	}
	if len(rcr) != 1 || rcr[0].Code != "D15" {
		t.Fatalf("unexpected RCR districts: %+v", rcr)
	}
}

func TestServiceImportSkipsBadRows(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	data := `code,name,region
D01,Raffles Place,CCR
,,CCR
D01,Duplicate,CCR
D05,No Region,
`
	summary, err := service.Import(context.Background(), "districts.csv", strings.NewReader(data))
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	if summary.TotalRows != 4 || summary.Loaded != 1 || summary.Skipped != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Errors) != 3 {
		t.Fatalf("expected 3 row errors, got %v", summary.Errors)
	}
	for _, msg := range summary.Errors {
		if !strings.HasPrefix(msg, "row ") {
			t.Fatalf("row error missing row number: %q", msg)
		}
	}
}

func TestServiceImportNameFallsBackToCode(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	data := "district,segment\nD02,CCR\n"
	if _, err := service.Import(context.Background(), "d.csv", strings.NewReader(data)); err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	d, err := repo.GetDistrict(context.Background(), "D02")
	if err != nil {
		t.Fatalf("get district: %v", err)
	}
	if d.Name != "D02" {
		t.Fatalf("expected name to default to code, got %q", d.Name)
	}
}

func TestServiceImportRequiresKnownColumns(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	data := "foo,bar\n1,2\n"
	if _, err := service.Import(context.Background(), "d.csv", strings.NewReader(data)); err == nil {
		t.Fatal("expected error when code column is missing")
	}

	data = "code,name\nD01,Raffles Place\n"
	if _, err := service.Import(context.Background(), "d.csv", strings.NewReader(data)); err == nil {
		t.Fatal("expected error when region column is missing")
	}
}

func TestServiceImportRejectsUnknownExtension(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	_, err := service.Import(context.Background(), "districts.pdf", strings.NewReader("code,region\n"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestServiceImportReadsExcel(t *testing.T) {
	repo := repository.NewMemoryCatalogRepository()
	service := NewService(repo)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]any{"District", "Name", "Segment"}); err != nil {
		t.Fatalf("set header row: %v", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &[]any{"D09", "Orchard", "ccr"}); err != nil {
		t.Fatalf("set data row: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	summary, err := service.Import(context.Background(), "districts.xlsx", &buf)
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if summary.Loaded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	d, err := repo.GetDistrict(context.Background(), "D09")
	if err != nil {
		t.Fatalf("get district: %v", err)
	}
	if d.Region != "CCR" {
		t.Fatalf("expected region CCR, got %q", d.Region)
	}
}
