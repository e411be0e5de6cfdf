// Package importer translates uploaded master-list spreadsheets into typed
// registry rows.
package importer

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/wavecheck/wavecheck/internal/models"
)

// Spreadsheet column headers, matched case-sensitively against the first
// row of the first sheet.
const (
	headerUserID      = "User ID"
	headerName        = "Employee Name"
	headerBadgeID     = "Badge ID"
	headerCompany     = "Company Name"
	headerTransporter = "Transporter ID"
)

var ErrNoRows = errors.New("workbook has no data rows")

// Result carries the parsed rows plus how many were dropped for missing a
// required field, so the operator sees what the import skipped.
type Result struct {
	Rows    []models.MasterCreateInput
	Skipped int
}

// ParseMasterWorkbook reads the first sheet of an xlsx upload. Rows missing
// any of user id, name or badge id are skipped, not fatal; a workbook whose
// first sheet has no data rows at all is an error.
func ParseMasterWorkbook(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "read sheet")
	}
	if len(rows) < 2 {
		return nil, ErrNoRows
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	pick := func(row []string, header string) string {
		i, ok := cols[header]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	res := &Result{}
	for _, row := range rows[1:] {
		in := models.MasterCreateInput{
			UserID:        pick(row, headerUserID),
			Name:          pick(row, headerName),
			BadgeID:       pick(row, headerBadgeID),
			CompanyName:   pick(row, headerCompany),
			TransporterID: pick(row, headerTransporter),
		}
		if in.UserID == "" || in.Name == "" || in.BadgeID == "" {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, in)
	}
	if len(res.Rows) == 0 && res.Skipped == 0 {
		return nil, ErrNoRows
	}
	return res, nil
}
