package etl

import (
	"strings"

	"hcahps/pkg/models"
)

// BuildDimensions derives the state, measure and answer lookup tables from
// the full batch. Ids are contiguous from 1 in order of first appearance;
// blank natural keys never produce a row.
func BuildDimensions(rows []models.RawObservation) *models.Dimensions {
	var (
		states   []models.StateDim
		measures []models.MeasureDim
		answers  []models.AnswerDim

		seenState  = make(map[string]bool)
		seenAnswer = make(map[string]bool)
		measurePos = make(map[string]int)
	)

	for _, row := range rows {
		if code := strings.TrimSpace(row.State); code != "" && !seenState[code] {
			seenState[code] = true
			states = append(states, models.StateDim{ID: len(states) + 1, Code: code})
		}

		if key := strings.TrimSpace(row.MeasureID); key != "" {
			question := strings.TrimSpace(row.Question)
			pos, ok := measurePos[key]
			switch {
			case !ok:
				measurePos[key] = len(measures)
				measures = append(measures, models.MeasureDim{ID: len(measures) + 1, MeasureID: key, Question: question})
			case measures[pos].Question == "" && question != "":
				measures[pos].Question = question
			}
		}

		if desc := strings.TrimSpace(row.Answer); desc != "" && !seenAnswer[desc] {
			seenAnswer[desc] = true
			answers = append(answers, models.AnswerDim{ID: len(answers) + 1, Description: desc})
		}
	}

	return models.NewDimensions(states, measures, answers)
}
