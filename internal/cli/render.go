package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/ErakhtinB/rerun"
)

func renderSchema(schema rerun.Schema) (string, error) {
	data := pterm.TableData{{"Column", "Type", "Nullable"}}
	for _, f := range schema {
		data = append(data, []string{f.Name, f.Type, strconv.FormatBool(f.Nullable)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func renderResultSet(rs *rerun.ResultSet) (string, error) {
	return pterm.DefaultTable.WithHasHeader().WithData(resultTableData(rs)).Srender()
}

func resultTableData(rs *rerun.ResultSet) pterm.TableData {
	header := make([]string, len(rs.Schema))
	for i, f := range rs.Schema {
		header[i] = f.Name
	}
	data := pterm.TableData{header}
	for _, row := range rs.ToValues() {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		data = append(data, cells)
	}
	return data
}

func formatValue(v rerun.Value) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// presentError formats err for the terminal, naming its kind when it has one.
func presentError(err error) string {
	var e *rerun.Error
	if errors.As(err, &e) {
		return fmt.Sprintf("❌ %s error\n   %s", rerun.KindOf(err), err)
	}
	return fmt.Sprintf("❌ %s", err)
}
