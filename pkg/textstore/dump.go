// ABOUTME: Workbook dump of the whole store for manual review
// ABOUTME: Overview, Digital, OCR and Combined sheets, one row per document or page

package textstore

import (
	"fmt"
	"io"

	"github.com/nainya/pagefinder/pkg/storage"
	"github.com/xuri/excelize/v2"
)

// maxCellText is the Excel limit on characters in one cell.
const maxCellText = 32767

const (
	overviewSheet = "Overview"
	digitalSheet  = "Digital"
	ocrSheet      = "OCR"
	combinedSheet = "Combined"
)

// documentVariants reads both text variants of docID in one transaction.
func (s *Store) documentVariants(op, docID string) (digital, ocr map[int]string, err error) {
	err = s.kv.View(func(tx *storage.Tx) error {
		var err error
		if digital, err = scanPages(tx, partDigital, docID); err != nil {
			return err
		}
		ocr, err = scanPages(tx, partOCR, docID)
		return err
	})
	if err != nil {
		return nil, nil, storageErr(op, docID, err)
	}
	return digital, ocr, nil
}

// DumpXLSX writes every stored document to a workbook. Cell text longer
// than Excel allows is truncated.
func (s *Store) DumpXLSX(w io.Writer) error {
	ids, err := s.ListDocumentIDs()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), overviewSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	for _, name := range []string{digitalSheet, ocrSheet, combinedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	sheets := []string{overviewSheet, digitalSheet, ocrSheet, combinedSheet}
	rowNum := map[string]int{}
	appendRow := func(sheet string, row []interface{}) error {
		rowNum[sheet]++
		cell, _ := excelize.CoordinatesToCellName(1, rowNum[sheet])
		return f.SetSheetRow(sheet, cell, &row)
	}

	headers := map[string][]interface{}{
		overviewSheet: {"Document", "File Name", "File Path", "Pages", "Digital Pages", "OCR Pages", "Content Hash", "Processed"},
		digitalSheet:  {"Document", "Page", "Text"},
		ocrSheet:      {"Document", "Page", "Text"},
		combinedSheet: {"Document", "Page", "Text"},
	}
	for _, sheet := range sheets {
		if err := appendRow(sheet, headers[sheet]); err != nil {
			return err
		}
	}

	merged := pagesOptions{combine: true, prefer: VariantDigital}
	for _, id := range ids {
		doc, err := s.GetDocumentMetadata(id)
		if err != nil {
			return err
		}
		digital, ocr, err := s.documentVariants("dump", id)
		if err != nil {
			return err
		}

		overview := []interface{}{id, "", "", 0, len(digital), len(ocr), "", ""}
		if doc != nil {
			overview[1] = doc.FileName
			overview[2] = doc.FilePath
			overview[3] = doc.PageCount
			overview[6] = doc.ContentHash
			if !doc.ProcessingDate.IsZero() {
				overview[7] = doc.ProcessingDate.UTC().Format("2006-01-02 15:04:05")
			}
		}
		if err := appendRow(overviewSheet, overview); err != nil {
			return err
		}

		combined := merged.mergeAll(digital, ocr)

		for _, part := range []struct {
			sheet string
			pages map[int]string
		}{
			{digitalSheet, digital},
			{ocrSheet, ocr},
			{combinedSheet, combined},
		} {
			for _, n := range SortedPages(part.pages) {
				if err := appendRow(part.sheet, []interface{}{id, n, cellText(part.pages[n])}); err != nil {
					return err
				}
			}
		}
	}

	f.SetColWidth(overviewSheet, "A", "C", 30)
	for _, sheet := range sheets[1:] {
		f.SetColWidth(sheet, "A", "A", 30)
		f.SetColWidth(sheet, "C", "C", 100)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cellText(s string) string {
	r := []rune(s)
	if len(r) <= maxCellText {
		return s
	}
	return string(r[:maxCellText])
}
