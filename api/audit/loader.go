package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// ErrUnsupportedFormat is returned for file extensions the loader does
// not understand.
var ErrUnsupportedFormat = errors.New("unsupported file format")

const maxXLSRows = 200000

// ParseUpload turns an uploaded spreadsheet into a Table. The format
// is chosen by extension: .csv, .xlsx and legacy .xls are supported.
// password is only honored for encrypted .xlsx workbooks.
func ParseUpload(fileName string, data []byte, password string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return parseCSV(data)
	case ".xlsx":
		return parseXLSX(data, password)
	case ".xls":
		return parseXLS(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// parseCSV reads a CSV export. Finance systems here emit either UTF-8
// (sometimes with a BOM) or EUC-KR; invalid UTF-8 input is re-decoded
// as EUC-KR before parsing.
func parseCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("decode euc-kr csv: %w", err)
		}
		data = decoded
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return tableFromRecords(records)
}

func parseXLSX(data []byte, password string) (*Table, error) {
	opts := excelize.Options{}
	if password != "" {
		opts.Password = password
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return tableFromRecords(rows)
}

func parseXLS(data []byte) (*Table, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	rows := wb.ReadAllCells(maxXLSRows)
	return tableFromRecords(rows)
}

func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("file contains no rows")
	}
	headers := records[0]
	if len(headers) == 0 {
		return nil, errors.New("file has an empty header row")
	}
	return NewTable(headers, records[1:]), nil
}
