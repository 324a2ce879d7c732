package models

// Dimensions holds the three lookup tables of one batch, indexed both by
// natural key and by surrogate id. It is read-only once built.
type Dimensions struct {
	States   []StateDim
	Measures []MeasureDim
	Answers  []AnswerDim

	stateByCode  map[string]int
	measureByKey map[string]int
	answerByDesc map[string]int
	statePos     map[int]int
	measurePos   map[int]int
	answerPos    map[int]int
}

// NewDimensions indexes already-deduplicated dimension rows.
func NewDimensions(states []StateDim, measures []MeasureDim, answers []AnswerDim) *Dimensions {
	d := &Dimensions{
		States:       states,
		Measures:     measures,
		Answers:      answers,
		stateByCode:  make(map[string]int, len(states)),
		measureByKey: make(map[string]int, len(measures)),
		answerByDesc: make(map[string]int, len(answers)),
		statePos:     make(map[int]int, len(states)),
		measurePos:   make(map[int]int, len(measures)),
		answerPos:    make(map[int]int, len(answers)),
	}
	for i, s := range states {
		d.stateByCode[s.Code] = s.ID
		d.statePos[s.ID] = i
	}
	for i, m := range measures {
		d.measureByKey[m.MeasureID] = m.ID
		d.measurePos[m.ID] = i
	}
	for i, a := range answers {
		d.answerByDesc[a.Description] = a.ID
		d.answerPos[a.ID] = i
	}
	return d
}

// StateID resolves a state code to its surrogate id
func (d *Dimensions) StateID(code string) (int, bool) {
	id, ok := d.stateByCode[code]
	return id, ok
}

// MeasureID resolves a measure identifier to its surrogate id
func (d *Dimensions) MeasureID(measure string) (int, bool) {
	id, ok := d.measureByKey[measure]
	return id, ok
}

// AnswerID resolves an answer description to its surrogate id
func (d *Dimensions) AnswerID(description string) (int, bool) {
	id, ok := d.answerByDesc[description]
	return id, ok
}

// State returns the state row for a surrogate id
func (d *Dimensions) State(id int) (StateDim, bool) {
	pos, ok := d.statePos[id]
	if !ok {
		return StateDim{}, false
	}
	return d.States[pos], true
}

// Measure returns the measure row for a surrogate id
func (d *Dimensions) Measure(id int) (MeasureDim, bool) {
	pos, ok := d.measurePos[id]
	if !ok {
		return MeasureDim{}, false
	}
	return d.Measures[pos], true
}

// Answer returns the answer row for a surrogate id
func (d *Dimensions) Answer(id int) (AnswerDim, bool) {
	pos, ok := d.answerPos[id]
	if !ok {
		return AnswerDim{}, false
	}
	return d.Answers[pos], true
}

// Resolves reports whether all three references of f exist.
func (d *Dimensions) Resolves(f Fact) bool {
	_, s := d.statePos[f.StateID]
	_, m := d.measurePos[f.MeasureID]
	_, a := d.answerPos[f.AnswerID]
	return s && m && a
}
