package extract

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseWorkbook extracts text from an XLSX workbook. Each sheet becomes
// a "# Sheet: <name>" block with one line per non-empty row, cells
// joined with " | "; sheets are separated by blank lines. The layout
// keeps tabular context readable after chunking.
func parseWorkbook(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", err
		}

		var lines []string
		for _, row := range rows {
			if rowEmpty(row) {
				continue
			}
			lines = append(lines, strings.Join(row, " | "))
		}
		if len(lines) > 0 {
			sheets = append(sheets, "# Sheet: "+name+"\n"+strings.Join(lines, "\n"))
		}
	}

	return strings.Join(sheets, "\n\n"), nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
