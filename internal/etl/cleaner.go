package etl

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"hcahps/internal/observability"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// DateLayout accepts MM/DD/YYYY with or without leading zeros.
const DateLayout = "1/2/2006"

// Cleaner turns raw rows into facts against a complete set of dimensions.
type Cleaner struct {
	// Workers > 1 cleans contiguous chunks concurrently. Output is the same
	// as the sequential run.
	Workers int
	Logger  *observability.Logger
}

// Clean produces one fact per accepted row, in input order, and a report
// covering every row. Row problems never fail the call; only ctx does.
func (c *Cleaner) Clean(ctx context.Context, rows []models.RawObservation, dims *models.Dimensions) ([]models.Fact, *Report, error) {
	logger := c.Logger
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}

	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}
	if workers <= 1 {
		facts, report := cleanChunk(rows, dims, logger)
		return facts, report, ctx.Err()
	}

	chunk := (len(rows) + workers - 1) / workers
	factParts := make([][]models.Fact, workers)
	reportParts := make([]*Report, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > len(rows) {
			hi = len(rows)
		}
		if lo >= hi {
			reportParts[w] = newReport()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			factParts[w], reportParts[w] = cleanChunk(rows[lo:hi], dims, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report := newReport()
	facts := make([]models.Fact, 0, len(rows))
	for w := 0; w < workers; w++ {
		facts = append(facts, factParts[w]...)
		report.merge(reportParts[w])
	}
	return facts, report, nil
}

func cleanChunk(rows []models.RawObservation, dims *models.Dimensions, logger *observability.Logger) ([]models.Fact, *Report) {
	report := newReport()
	facts := make([]models.Fact, 0, len(rows))

	for _, row := range rows {
		report.InputRows++
		fact, err := CleanRow(row, dims)
		if err != nil {
			report.skip(Issue{
				Line:   row.Line,
				Reason: reasonFor(err.Code),
				Field:  stringContext(err, "field"),
				Value:  stringContext(err, "value"),
				Detail: err.Message,
			})
			logger.DebugWithFields("row skipped", map[string]interface{}{
				"line": row.Line,
				"code": string(err.Code),
			})
			continue
		}
		if fact.StartDate.After(fact.EndDate) {
			logger.DebugWithFields("reporting period starts after it ends", map[string]interface{}{
				"line": row.Line,
			})
		}
		report.Facts++
		facts = append(facts, fact)
	}
	return facts, report
}

// CleanRow converts a single raw row. The returned error carries one of the
// row-level codes and is always recoverable.
func CleanRow(row models.RawObservation, dims *models.Dimensions) (models.Fact, *apperrors.AppError) {
	pct, err := CleanPercent(row.Percent)
	if err != nil {
		return models.Fact{}, apperrors.RowError(apperrors.ErrCodeMalformedPercentage, row.Line, "HCAHPS Answer Percent", row.Percent, err.Error())
	}

	start, err := time.Parse(DateLayout, strings.TrimSpace(row.StartDate))
	if err != nil {
		return models.Fact{}, apperrors.RowError(apperrors.ErrCodeMalformedDate, row.Line, "Start Date", row.StartDate, "expected MM/DD/YYYY")
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(row.EndDate))
	if err != nil {
		return models.Fact{}, apperrors.RowError(apperrors.ErrCodeMalformedDate, row.Line, "End Date", row.EndDate, "expected MM/DD/YYYY")
	}

	stateID, ok := dims.StateID(strings.TrimSpace(row.State))
	if !ok {
		return models.Fact{}, unresolved(row.Line, "State", row.State)
	}
	measureID, ok := dims.MeasureID(strings.TrimSpace(row.MeasureID))
	if !ok {
		return models.Fact{}, unresolved(row.Line, "HCAHPS Measure ID", row.MeasureID)
	}
	answerID, ok := dims.AnswerID(strings.TrimSpace(row.Answer))
	if !ok {
		return models.Fact{}, unresolved(row.Line, "HCAHPS Answer Description", row.Answer)
	}

	return models.Fact{
		StateID:   stateID,
		MeasureID: measureID,
		AnswerID:  answerID,
		Percent:   pct,
		Footnote:  strings.TrimSpace(row.Footnote),
		StartDate: start,
		EndDate:   end,
	}, nil
}

// CleanPercent maps the sentinel and blanks to an absent value and parses
// everything else as a percentage in [0, 100].
func CleanPercent(raw string) (models.Percent, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == models.NotAvailable || trimmed == "" {
		return models.Percent{}, nil
	}

	pct, err := models.ParsePercent(trimmed)
	if err != nil {
		return models.Percent{}, err
	}
	if pct.Hundredths < 0 || pct.Hundredths > 10000 {
		return models.Percent{}, errOutOfRange
	}
	return pct, nil
}

var errOutOfRange = errors.New("percentage outside [0, 100]")

func unresolved(line int, field, value string) *apperrors.AppError {
	reason := "no dimension row for this key"
	if strings.TrimSpace(value) == "" {
		reason = "blank natural key"
	}
	return apperrors.RowError(apperrors.ErrCodeUnresolvedDimension, line, field, value, reason)
}

func stringContext(err *apperrors.AppError, key string) string {
	if v, ok := err.Context[key].(string); ok {
		return v
	}
	return ""
}
