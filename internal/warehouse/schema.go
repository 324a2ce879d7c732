package warehouse

import "fmt"

// Table names of the persisted model
const (
	tableState   = "dim_state"
	tableMeasure = "dim_measure"
	tableAnswer  = "dim_answer"
	tableFact    = "fact_response"
)

var factColumns = []string{
	"fact_id", "state_id", "measure_key", "answer_id",
	"answer_percent", "footnote", "start_date", "end_date",
}

type table struct {
	name string
	ddl  string
}

// schema returns the DDL in creation order. Dimensions come first so the
// fact table's foreign keys resolve.
func schema(d Dialect) []table {
	return []table{
		{tableState, fmt.Sprintf(`CREATE TABLE %s (
    state_id INTEGER NOT NULL PRIMARY KEY,
    state_code %s NOT NULL UNIQUE
)`, tableState, d.KeyType)},
		{tableMeasure, fmt.Sprintf(`CREATE TABLE %s (
    measure_key INTEGER NOT NULL PRIMARY KEY,
    measure_id %s NOT NULL UNIQUE,
    question %s
)`, tableMeasure, d.KeyType, d.TextType)},
		{tableAnswer, fmt.Sprintf(`CREATE TABLE %s (
    answer_id INTEGER NOT NULL PRIMARY KEY,
    answer_description %s NOT NULL UNIQUE
)`, tableAnswer, d.KeyType)},
		{tableFact, fmt.Sprintf(`CREATE TABLE %s (
    fact_id INTEGER NOT NULL PRIMARY KEY,
    state_id INTEGER NOT NULL REFERENCES %s (state_id),
    measure_key INTEGER NOT NULL REFERENCES %s (measure_key),
    answer_id INTEGER NOT NULL REFERENCES %s (answer_id),
    answer_percent DECIMAL(5,2),
    footnote %s,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL
)`, tableFact, tableState, tableMeasure, tableAnswer, d.TextType)},
	}
}
