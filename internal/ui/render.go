package ui

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"hcahps/internal/analytics"
	"hcahps/internal/etl"
	apperrors "hcahps/pkg/errors"
)

// Output formats understood by Renderer
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Formats lists the supported output formats
func Formats() []string {
	return []string{FormatTable, FormatJSON, FormatCSV}
}

// Renderer writes reports and run summaries to a writer
type Renderer struct {
	out      io.Writer
	format   string
	useColor bool
}

// NewRenderer creates a renderer for the given format
func NewRenderer(out io.Writer, format string, useColor bool) (*Renderer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatTable
	}
	switch format {
	case FormatTable, FormatJSON, FormatCSV:
	default:
		return nil, apperrors.ValidationError("format", format, "must be one of "+strings.Join(Formats(), ", "))
	}
	return &Renderer{out: out, format: format, useColor: useColor}, nil
}

// Reports renders a batch of reports. JSON output is a single array.
func (r *Renderer) Reports(reports []*analytics.Report) error {
	if r.format == FormatJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for i, rep := range reports {
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		if err := r.Report(rep); err != nil {
			return err
		}
	}
	return nil
}

// Report renders one report
func (r *Renderer) Report(rep *analytics.Report) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatCSV:
		return r.csv(rep)
	default:
		r.table(rep)
		return nil
	}
}

func (r *Renderer) table(rep *analytics.Report) {
	title := fmt.Sprintf("%s (%s)", rep.Title, rep.ID)
	if r.useColor {
		title = color.New(color.Bold).Sprint(title)
	}
	fmt.Fprintln(r.out, title)

	if len(rep.Rows) == 0 {
		fmt.Fprintln(r.out, "  (no rows)")
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader(rep.Columns)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range rep.Rows {
		table.Append(cells(row))
	}
	table.Render()
}

func (r *Renderer) csv(rep *analytics.Report) error {
	w := csv.NewWriter(r.out)
	if err := w.Write(append([]string{"report"}, rep.Columns...)); err != nil {
		return err
	}
	for _, row := range rep.Rows {
		if err := w.Write(append([]string{rep.ID}, cells(row)...)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Summary renders the outcome of a load
func (r *Renderer) Summary(rep *etl.Report) error {
	if r.format == FormatJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(r.out, "Rows read:    %d\n", rep.InputRows)
	fmt.Fprintf(r.out, "Facts loaded: %s\n", r.paint(color.FgGreen, strconv.Itoa(rep.Facts)))
	if rep.Skipped == 0 {
		fmt.Fprintf(r.out, "Rows skipped: %d\n", rep.Skipped)
		return nil
	}
	fmt.Fprintf(r.out, "Rows skipped: %s\n", r.paint(color.FgYellow, strconv.Itoa(rep.Skipped)))

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Reason", "Rows"})
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, reason := range rep.Reasons() {
		table.Append([]string{string(reason), strconv.Itoa(rep.ByReason[reason])})
	}
	table.Render()
	return nil
}

// Issues lists skipped rows, at most limit of them (0 means all)
func (r *Renderer) Issues(rep *etl.Report, limit int) {
	issues := rep.Issues
	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	if len(issues) == 0 {
		return
	}
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Line", "Reason", "Field", "Value"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, issue := range issues {
		table.Append([]string{strconv.Itoa(issue.Line), string(issue.Reason), issue.Field, issue.Value})
	}
	table.Render()
	if rest := len(rep.Issues) - len(issues); rest > 0 {
		fmt.Fprintf(r.out, "  ... and %d more\n", rest)
	}
}

func (r *Renderer) paint(attr color.Attribute, s string) string {
	if !r.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

func cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = FormatValue(v)
	}
	return out
}

// FormatValue renders a report cell. Floats always carry two decimals.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 2, 32)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
