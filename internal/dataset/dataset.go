// Package dataset 是表格数据的读写边界：把文件物化为 domain.Table，
// 以及把增列后的表写回文件。核心管线不感知文件格式。
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/infra/fsx"
)

// Read 按扩展名读取表格（.xlsx / .csv / .html）。
//
// 约定：
// - 首行是表头；表头做首尾去空白
// - 单元格一律按字符串处理；行会补齐/截断到表头宽度（保证 Table 不变量）
func Read(path string) (domain.Table, error) {
	switch ext(path) {
	case ".xlsx":
		return readXLSX(path)
	case ".csv":
		return readCSV(path)
	case ".html", ".htm":
		return readHTML(path)
	default:
		return domain.Table{}, fmt.Errorf("不支持的输入格式：%q（支持 .xlsx/.csv/.html）", filepath.Ext(path))
	}
}

// Write 按扩展名写出表格（.xlsx / .csv），经原子写落盘。
func Write(path string, t domain.Table) error {
	var (
		b   []byte
		err error
	)
	switch ext(path) {
	case ".xlsx":
		b, err = encodeXLSX(t)
	case ".csv":
		b, err = encodeCSV(t)
	default:
		return fmt.Errorf("不支持的输出格式：%q（支持 .xlsx/.csv）", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func readXLSX(path string) (domain.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.Table{}, fmt.Errorf("工作簿没有任何 sheet：%q", path)
	}
	// 固定读第一个 sheet（与表头行号一样，这是输入约定而非配置项）。
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.Table{}, err
	}
	return fromRows(rows, path)
}

func readCSV(path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // 宽度交给 fromRows 归一
	rows, err := r.ReadAll()
	if err != nil {
		return domain.Table{}, err
	}
	return fromRows(rows, path)
}

// readHTML 取文档里的第一个 <table>（首行 th/td 作为表头）。
func readHTML(path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return domain.Table{}, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return domain.Table{}, fmt.Errorf("文档里没有 <table>：%q", path)
	}

	rows := make([][]string, 0, 128)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := make([]string, 0, 8)
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			// HTML 的缩进/换行是排版噪音，逐格去首尾空白。
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return fromRows(rows, path)
}

// fromRows 把原始行集归一为 Table：首行做表头（去首尾空白），
// 数据行补齐/截断到表头宽度。
func fromRows(rows [][]string, path string) (domain.Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return domain.Table{}, fmt.Errorf("表格为空或没有表头：%q", path)
	}

	columns := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		columns[i] = strings.TrimSpace(c)
	}

	out := domain.Table{
		Columns: columns,
		Rows:    make([][]string, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		cells := make([]string, len(columns))
		copy(cells, row)
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

func encodeCSV(t domain.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(t domain.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	all := append([][]string{t.Columns}, t.Rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
