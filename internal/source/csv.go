package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"hcahps/internal/observability"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// Column names of the state-level HCAHPS export.
const (
	ColState     = "State"
	ColMeasureID = "HCAHPS Measure ID"
	ColQuestion  = "HCAHPS Question"
	ColAnswer    = "HCAHPS Answer Description"
	ColPercent   = "HCAHPS Answer Percent"
	ColFootnote  = "Footnote"
	ColStartDate = "Start Date"
	ColEndDate   = "End Date"
)

// aliases maps alternative header spellings onto canonical column names.
var aliases = map[string]string{
	"survey question": ColQuestion,
}

var required = []string{
	ColState, ColMeasureID, ColQuestion, ColAnswer, ColPercent, ColStartDate, ColEndDate,
}

// ReadCSV reads the whole export. A header lacking a required column is
// fatal; anything else wrong with a row is left to the cleaner.
func ReadCSV(r io.Reader) ([]models.RawObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.MissingColumnsError(required)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceUnreadable, "failed to read CSV header")
	}

	index, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	var rows []models.RawObservation
	blank := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.StartLine
			}
			return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceUnreadable, fmt.Sprintf("failed to read CSV line %d", line)).
				WithContext("line", line)
		}
		if blankRecord(record) {
			blank++
			continue
		}

		// physical line where the record starts; empty lines and quoted
		// fields spanning lines make this differ from the record count
		line, _ := reader.FieldPos(0)

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		rows = append(rows, models.RawObservation{
			Line:      line,
			State:     get(ColState),
			MeasureID: get(ColMeasureID),
			Question:  get(ColQuestion),
			Answer:    get(ColAnswer),
			Percent:   get(ColPercent),
			Footnote:  get(ColFootnote),
			StartDate: get(ColStartDate),
			EndDate:   get(ColEndDate),
		})
	}

	if blank > 0 {
		observability.GetDefaultLogger().DebugWithFields("blank records ignored", map[string]interface{}{
			"records": blank,
		})
	}
	return rows, nil
}

func indexHeader(header []string) (map[string]int, error) {
	canonical := make(map[string]string)
	for _, col := range append(append([]string{}, required...), ColFootnote) {
		canonical[strings.ToLower(col)] = col
	}
	for alias, col := range aliases {
		canonical[alias] = col
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if col, ok := canonical[key]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.MissingColumnsError(missing)
	}
	return index, nil
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
