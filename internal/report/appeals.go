// Package report renders appeal lists as spreadsheets
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

// SheetName is the worksheet holding the appeal rows
const SheetName = "Appeals"

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AppealHeader is the first row of the sheet
var AppealHeader = []string{
	"Ticket",
	"Type",
	"Severity",
	"Status",
	"Location",
	"Description",
	"Source",
	"Created",
	"Updated",
}

var columnWidths = []float64{12, 18, 12, 14, 24, 48, 14, 20, 20}

// Names resolves reference ids that the appeal rows did not carry
type Names struct {
	Types      map[int]string
	Severities map[int]string
	Statuses   map[int]string
}

// NamesFrom indexes loaded reference lists by id
func NamesFrom(refs *backend.References) Names {
	n := Names{
		Types:      map[int]string{},
		Severities: map[int]string{},
		Statuses:   map[int]string{},
	}
	if refs == nil {
		return n
	}
	for _, r := range refs.Types {
		n.Types[r.ID] = r.Name
	}
	for _, r := range refs.Severities {
		n.Severities[r.ID] = r.Name
	}
	for _, r := range refs.Statuses {
		n.Statuses[r.ID] = r.Name
	}
	return n
}

func pick(name string, id int, names map[int]string) string {
	if name != "" {
		return name
	}
	if n, ok := names[id]; ok {
		return n
	}
	return strconv.Itoa(id)
}

func appealRow(a backend.Appeal, names Names) []any {
	ticket := a.TicketNumber
	if ticket == "" {
		ticket = a.ID.String()
	}
	updated := ""
	if a.UpdatedAt != nil {
		updated = a.UpdatedAt.UTC().Format(time.DateTime)
	}
	return []any{
		ticket,
		pick(a.TypeName, a.TypeID, names.Types),
		pick(a.SeverityName, a.SeverityID, names.Severities),
		pick(a.StatusName, a.StatusID, names.Statuses),
		a.Location,
		a.Description,
		a.Source,
		a.CreatedAt.UTC().Format(time.DateTime),
		updated,
	}
}

// Appeals writes list as a single-sheet xlsx workbook
func Appeals(list []backend.Appeal, names Names) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &AppealHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(AppealHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, a := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := appealRow(a, names)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
