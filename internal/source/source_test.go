package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hcahps/internal/observability"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

const sampleCSV = `State,HCAHPS Measure ID,HCAHPS Question,HCAHPS Answer Description,HCAHPS Answer Percent,Footnote,Start Date,End Date
AZ,H_COMP_1_A_P,"Patients who reported that their nurses ""Always"" communicated well",Nurses always communicated well,85.5,,01/01/2023,12/31/2023
AZ,H_COMP_1_A_P,"Patients who reported that their nurses ""Always"" communicated well",Nurses always communicated well,Not Available,5,01/01/2023,12/31/2023
,,,,,,,
CA,H_COMP_1_A_P,"Patients who reported that their nurses ""Always"" communicated well",Nurses always communicated well,79,,01/01/2023,12/31/2023
`

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, models.RawObservation{
		Line:      2,
		State:     "AZ",
		MeasureID: "H_COMP_1_A_P",
		Question:  `Patients who reported that their nurses "Always" communicated well`,
		Answer:    "Nurses always communicated well",
		Percent:   "85.5",
		StartDate: "01/01/2023",
		EndDate:   "12/31/2023",
	}, rows[0])
	assert.Equal(t, "Not Available", rows[1].Percent)
	assert.Equal(t, "5", rows[1].Footnote)
	assert.Equal(t, 5, rows[2].Line, "comma-only records still count as lines")
}

func TestReadCSVLineNumbersArePhysical(t *testing.T) {
	data := "State,HCAHPS Measure ID,HCAHPS Question,HCAHPS Answer Description,HCAHPS Answer Percent,Start Date,End Date\n" +
		"AZ,H_COMP_1,\"Nurses\ncommunicated well\",Always,85,01/01/2023,12/31/2023\n" +
		"\n" +
		"CA,H_COMP_1,Nurses communicated well,Always,bad,01/01/2023,12/31/2023\n"

	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "Nurses\ncommunicated well", rows[0].Question)
	assert.Equal(t, 5, rows[1].Line)
	assert.Equal(t, "bad", rows[1].Percent)
}

func TestReadCSVLogsBlankRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.GetDefaultLogger()
	observability.SetDefaultLogger(observability.NewLogger(observability.LoggerConfig{
		Level:  observability.DebugLevel,
		Output: &buf,
	}))
	t.Cleanup(func() { observability.SetDefaultLogger(prev) })

	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Contains(t, buf.String(), "blank records ignored")
	assert.Contains(t, buf.String(), `"records":1`)
}

func TestReadCSVHeaderVariants(t *testing.T) {
	data := "\ufeffstate , hcahps measure id,Survey Question,HCAHPS Answer Description,HCAHPS Answer Percent,Start Date,End Date\n" +
		"TX,H_CLEAN_HSP_A_P,Room was always clean,Always clean,72,01/01/2023,12/31/2023\n"

	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TX", rows[0].State)
	assert.Equal(t, "Room was always clean", rows[0].Question)
	assert.Empty(t, rows[0].Footnote)
}

func TestReadCSVMissingColumns(t *testing.T) {
	data := "State,HCAHPS Measure ID,HCAHPS Answer Percent\nAZ,H_COMP_1,80\n"

	_, err := ReadCSV(strings.NewReader(data))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingColumns, apperrors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "HCAHPS Question")
	assert.Contains(t, err.Error(), "End Date")
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingColumns, apperrors.GetErrorCode(err))
}

func TestReadCSVShortRows(t *testing.T) {
	data := "State,HCAHPS Measure ID,HCAHPS Question,HCAHPS Answer Description,HCAHPS Answer Percent,Start Date,End Date\n" +
		"AZ,H_COMP_1\n"

	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "H_COMP_1", rows[0].MeasureID)
	assert.Empty(t, rows[0].Percent)
}

type fakeS3 struct {
	objects map[string]string
	calls   []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.calls = append(f.calls, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestOpenerS3(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"exports/2023/hcahps.csv": sampleCSV}}
	opener := NewOpener(models.Source{}).WithClient(client)

	rows, err := opener.Load(context.Background(), "s3://exports/2023/hcahps.csv")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, []string{"exports/2023/hcahps.csv"}, client.calls)

	_, err = opener.Load(context.Background(), "s3://exports/missing.csv")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSourceUnreadable, apperrors.GetErrorCode(err))
}

func TestOpenerMalformedLocation(t *testing.T) {
	opener := NewOpener(models.Source{}).WithClient(&fakeS3{})

	_, err := opener.Open(context.Background(), "s3://bucket-only")
	assert.Equal(t, apperrors.ErrCodeSourceLocation, apperrors.GetErrorCode(err))

	_, err = opener.Open(context.Background(), "")
	assert.Equal(t, apperrors.ErrCodeSourceLocation, apperrors.GetErrorCode(err))
}

func TestOpenerLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hcahps.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0600))

	rows, err := NewOpener(models.Source{}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = NewOpener(models.Source{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Equal(t, apperrors.ErrCodeSourceUnreadable, apperrors.GetErrorCode(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "s3 bucket=b key=k.csv", Describe("s3://b/k.csv"))
	assert.Equal(t, "file ./x.csv", Describe("./x.csv"))
}
