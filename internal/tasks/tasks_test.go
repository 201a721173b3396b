package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbuss/data-filter-utils/internal/classify"
	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/shared/testutil"
	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

func repeat(n int, row ...string) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = append([]string(nil), row...)
	}
	return rows
}

func concat(parts ...[][]string) [][]string {
	var out [][]string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestBuiltinsAreValid(t *testing.T) {
	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			task, ok := Builtin(name)
			require.True(t, ok)
			assert.NoError(t, task.Validate())
			_, err := task.FilePattern()
			assert.NoError(t, err)
		})
	}

	_, ok := Builtin("stroop")
	assert.False(t, ok)
	assert.Equal(t, []string{"ldt", "ospan", "simon", "trt"}, BuiltinNames())
}

func TestParticipantID(t *testing.T) {
	assert.Equal(t, "01_LDT_bilingual", LDT().ParticipantID("/data/ldt/01_LDT_bilingual.csv"))
	assert.Equal(t, "07", OSPAN().ParticipantID("/data/07_OSPAN.csv"))
	assert.Equal(t, "p3", TRT().ParticipantID("p3.csv"))
}

func TestRowID(t *testing.T) {
	trt := TRT()
	assert.Equal(t, "01-exclude both", trt.RowID("01", trt.Variants[3]))
	assert.Equal(t, "si4", Simon().RowID("si4", Variant{Name: "all"}))
	assert.Equal(t, "trt_session", trt.IdentifierColumn())
	assert.Equal(t, ColumnParticipant, Simon().IdentifierColumn())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, tasks []Task)
	}{
		{
			name: "expression classifier",
			yaml: `
tasks:
  - name: flanker
    pattern: 'flanker.*\.csv'
    case_insensitive: true
    skip: 10
    group_field: condition
    classifier:
      kind: expr
      expression: 'arrows == "<<<<<" || arrows == ">>>>>" ? "congruent" : "incongruent"'
    std_dev: true
    output: flanker-summary.csv
`,
			check: func(t *testing.T, tasks []Task) {
				require.Len(t, tasks, 1)
				task := tasks[0]
				assert.Equal(t, "flanker", task.Name)
				assert.True(t, task.CaseInsensitive)
				assert.Equal(t, 10, task.Skip)
				require.NotNil(t, task.Classifier)
				assert.Equal(t, classify.KindExpr, task.Classifier.Kind)
				assert.True(t, task.StdDev)
			},
		},
		{
			name: "variants and differences",
			yaml: `
tasks:
  - name: stroop
    pattern: 'stroop.*\.csv'
    group_field: color_match
    participant: prefix
    id_column: stroop_session
    sigma: 3
    variants:
      - name: raw
      - name: trimmed
        outliers: true
        response_time_range: true
    differences:
      - column: stroop_effect
        minuend: mismatch
        subtrahend: match
    output: stroop-summary.xlsx
`,
			check: func(t *testing.T, tasks []Task) {
				task := tasks[0]
				assert.Equal(t, 3.0, task.Sigma)
				assert.True(t, task.UsesOutliers())
				require.Len(t, task.Variants, 2)
				assert.True(t, task.Variants[1].ResponseTimeRange)
				assert.Equal(t, "stroop_effect", task.Differences[0].Column)
			},
		},
		{
			name:    "missing output",
			yaml:    "tasks:\n  - name: x\n    pattern: 'x'\n    group_field: c\n",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			yaml:    "tasks:\n  - name: x\n    pattern: '('\n    group_field: c\n    output: x.csv\n",
			wantErr: true,
		},
		{
			name:    "output with directory",
			yaml:    "tasks:\n  - name: x\n    pattern: 'x'\n    group_field: c\n    output: ../x.csv\n",
			wantErr: true,
		},
		{
			name:    "unknown classifier kind",
			yaml:    "tasks:\n  - name: x\n    pattern: 'x'\n    group_field: c\n    output: x.csv\n    classifier:\n      kind: dice\n",
			wantErr: true,
		},
		{
			name:    "field classifier without field",
			yaml:    "tasks:\n  - name: x\n    pattern: 'x'\n    group_field: c\n    output: x.csv\n    classifier:\n      kind: field\n",
			wantErr: true,
		},
		{
			name:    "unknown key",
			yaml:    "tasks:\n  - name: x\n    pattern: 'x'\n    group_field: c\n    output: x.csv\n    skipp: 3\n",
			wantErr: true,
		},
		{
			name: "duplicate name",
			yaml: "tasks:\n" +
				"  - {name: x, pattern: 'x', group_field: c, output: x.csv}\n" +
				"  - {name: x, pattern: 'y', group_field: c, output: y.csv}\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "tasks.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestRegistry(t *testing.T) {
	custom := Task{Name: "trt", Pattern: `x`, GroupField: "class", Output: "custom.csv"}
	reg := NewRegistry(custom, Task{Name: "flanker"})

	trt, err := reg.Lookup("trt")
	require.NoError(t, err)
	assert.Equal(t, "custom.csv", trt.Output)

	_, err = reg.Lookup("nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	assert.Equal(t, []string{"flanker", "ldt", "ospan", "simon", "trt"}, reg.Names())
}

func TestProcessFile_LDTRepairsHeadingAndClassifiesImages(t *testing.T) {
	dir := t.TempDir()
	// one stray row above the real header
	body := "Experiment export,,\n" + "image,response_time,accuracy\n"
	for i := 0; i < 16; i++ {
		body += "practice.bmp,99999,1\n"
	}
	for i := 0; i < 60; i++ {
		body += fmt.Sprintf("word_%d.bmp,500,1\n", i)
	}
	for i := 0; i < 60; i++ {
		body += fmt.Sprintf("jelp_%d.bmp,700,%d\n", i, i%2)
	}
	path := testutil.WriteFile(t, dir, "01_LDT_immersion.csv", body)

	p, err := NewProcessor(LDT())
	require.NoError(t, err)

	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, []string{
		"AvgAcc-nonword", "AvgAcc-overall", "AvgAcc-word",
		"AvgRT-nonword", "AvgRT-overall", "AvgRT-word",
		"participant",
	}, row.Columns())
	assert.Equal(t, "500", row["AvgRT-word"])
	assert.Equal(t, "700", row["AvgRT-nonword"])
	assert.Equal(t, "0.5", row["AvgAcc-nonword"])
	assert.Equal(t, "01_LDT_immersion", row["participant"])
	assert.Equal(t, 16, res.Counts.Skipped)
	assert.Equal(t, 120, res.Counts.Included)
	assert.Equal(t, 0, res.Malformed)
}

func TestProcessFile_LDTBilingualUsesIsWord(t *testing.T) {
	header := []string{"image", "isword", "response_time", "accuracy"}
	rows := concat(
		repeat(16, "p.bmp", "1", "99999", "1"),
		repeat(60, "jam.bmp", "1", "400", "1"),
		repeat(60, "word.bmp", "0", "800", "1"),
	)
	path := testutil.WriteCSV(t, t.TempDir(), "02_LDT_bilingual.csv", header, rows)

	p, err := NewProcessor(LDT())
	require.NoError(t, err)
	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "400", res.Rows[0]["AvgRT-word"])
	assert.Equal(t, "800", res.Rows[0]["AvgRT-nonword"])
}

func TestProcessFile_SimonScore(t *testing.T) {
	header := []string{"box_img", "alignment", "response_time", "accuracy"}

	tests := []struct {
		name  string
		rows  [][]string
		score string
	}{
		{
			name: "both conditions",
			rows: concat(
				repeat(25, "redsquare.bmp", "left", "99999", "1"),
				repeat(4, "redsquare.bmp", "left", "400", "1"),
				repeat(4, "bluesquare.bmp", "left", "450", "1"),
				repeat(2, "bluesquare.bmp", "left", "9000", "0"),
			),
			score: "50",
		},
		{
			name: "no correct incongruent trials",
			rows: concat(
				repeat(25, "redsquare.bmp", "left", "99999", "1"),
				repeat(4, "redsquare.bmp", "center", "400", "1"),
				repeat(2, "bluesquare.bmp", "left", "450", "0"),
			),
			score: stats.Null,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteCSV(t, t.TempDir(), "si01.csv", header, tt.rows)

			p, err := NewProcessor(Simon())
			require.NoError(t, err)
			res, err := p.ProcessFile(context.Background(), path)
			require.NoError(t, err)

			row := res.Rows[0]
			assert.Equal(t, tt.score, row["simon_score"])
			assert.Equal(t, "si01", row["participant"])
			assert.Equal(t, "400", row["AvgRT-congruent"])
		})
	}
}

func TestProcessFile_OSPANGroupsByColumn(t *testing.T) {
	header := []string{"use_correct", "response_time", "accuracy"}
	rows := concat(
		repeat(24, "practice", "99999", "1"),
		repeat(3, "True", "1200", "1"),
		repeat(3, "false", "1500", "0"),
		repeat(1, "", "1800", "1"),
	)
	path := testutil.WriteCSV(t, t.TempDir(), "12_OSPAN_session1.csv", header, rows)

	p, err := NewProcessor(OSPAN())
	require.NoError(t, err)
	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	row := res.Rows[0]
	assert.Equal(t, "12", row["participant"])
	assert.Equal(t, "1200", row["AvgRT-true"])
	assert.Equal(t, stats.Null, row["AvgRT-false"])
	assert.Equal(t, "1350", row["AvgRT-overall"], "unlabelled trial still counts overall")
	_, hasEmpty := row["AvgRT-"]
	assert.False(t, hasEmpty)
}

var trtHeader = []string{"class", "response_time", "accuracy"}

// skewedTRT has one slow outlier (3000) and one fast but statistically
// unremarkable trial (150).
func skewedTRT() [][]string {
	return concat(
		repeat(17, "practice", "500", "1"),
		repeat(20, "yes", "500", "1"),
		repeat(1, "splus", "3000", "1"),
		repeat(1, "sminus", "150", "1"),
	)
}

func TestProcessFile_TRTVariants(t *testing.T) {
	path := testutil.WriteCSV(t, t.TempDir(), "01_TRT_bilingual.csv", trtHeader, skewedTRT())

	p, err := NewProcessor(TRT())
	require.NoError(t, err)
	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	require.NotNil(t, res.Reference)
	assert.Equal(t, 39, res.Reference.N, "session estimate covers every row of the file")

	all, outliers, rng, both := res.Rows[0], res.Rows[1], res.Rows[2], res.Rows[3]

	assert.Equal(t, "01-all", all["trt_session"])
	assert.Equal(t, "01-exclude outliers", outliers["trt_session"])
	assert.Equal(t, "01-exclude <200ms and >2000ms", rng["trt_session"])
	assert.Equal(t, "01-exclude both", both["trt_session"])
	_, hasParticipant := all["participant"]
	assert.False(t, hasParticipant)

	assert.Equal(t, "3000", all["AvgRT-splus"])
	assert.Equal(t, "150", all["AvgRT-sminus"])

	assert.NotContains(t, outliers, "AvgRT-splus")
	assert.Equal(t, "150", outliers["AvgRT-sminus"])

	assert.NotContains(t, rng, "AvgRT-splus")
	assert.NotContains(t, rng, "AvgRT-sminus")
	assert.Equal(t, "500", rng["AvgRT-overall"])

	assert.Equal(t, map[string]string(rng), withID(both, "01-exclude <200ms and >2000ms"))

	for _, row := range res.Rows {
		assert.Equal(t, "500", row["AvgRT-yes"])
	}
	assert.Equal(t, 4*17, res.Counts.Skipped)
}

func withID(row map[string]string, id string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	out["trt_session"] = id
	return out
}

func TestProcessFile_CohortScopeSharesThreshold(t *testing.T) {
	dir := t.TempDir()
	skewed := testutil.WriteCSV(t, dir, "01_TRT.csv", trtHeader, skewedTRT())
	tight := testutil.WriteCSV(t, dir, "02_TRT.csv", trtHeader, concat(
		repeat(17, "practice", "500", "1"),
		repeat(20, "yes", "500", "1"),
		repeat(1, "tplus", "800", "1"),
	))

	session, err := NewProcessor(TRT())
	require.NoError(t, err)
	res, err := session.ProcessFile(context.Background(), tight)
	require.NoError(t, err)
	assert.NotContains(t, res.Rows[1], "AvgRT-tplus", "800 is an outlier within its own session")

	cohort, err := NewProcessor(TRT(), WithScope(filters.ScopeCohort))
	require.NoError(t, err)

	_, err = cohort.ProcessFile(context.Background(), tight)
	require.Error(t, err, "cohort scope requires Prepare")

	ref, err := cohort.Prepare(context.Background(), []string{skewed, tight})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, 39+38, ref.N)

	res, err = cohort.ProcessFile(context.Background(), tight)
	require.NoError(t, err)
	assert.Equal(t, "800", res.Rows[1]["AvgRT-tplus"], "800 is ordinary against the cohort")
	assert.Nil(t, res.Reference)
}

func TestPrepare_SessionScopeIsNoop(t *testing.T) {
	p, err := NewProcessor(TRT())
	require.NoError(t, err)
	ref, err := p.Prepare(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestProcessFile_Errors(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProcessor(OSPAN())
	require.NoError(t, err)

	noGroup := testutil.WriteCSV(t, dir, "01_OSPAN.csv", []string{"response_time", "accuracy"}, [][]string{{"500", "1"}})
	_, err = p.ProcessFile(context.Background(), noGroup)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))

	_, err = p.ProcessFile(context.Background(), filepath.Join(dir, "missing_OSPAN.csv"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := testutil.WriteCSV(t, dir, "02_OSPAN.csv", []string{"use_correct", "response_time", "accuracy"}, [][]string{{"true", "500", "1"}})
	_, err = p.ProcessFile(ctx, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessFile_CountsMalformedRows(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "03_OSPAN.csv",
		"use_correct,response_time,accuracy\ntrue,500,1\ntrue,600\ntrue,700,1\n")

	task := OSPAN()
	task.Skip = 0
	p, err := NewProcessor(task)
	require.NoError(t, err)

	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, "600", res.Rows[0]["AvgRT-true"])
}

func TestProcessFile_MalformedRowsCountTowardPractice(t *testing.T) {
	trt := TRT()
	trt.Skip = 2
	ospan := OSPAN()
	ospan.Skip = 2

	tests := []struct {
		name   string
		task   Task
		header string
	}{
		{"single streamed pass", ospan, "use_correct,response_time,accuracy"},
		{"variants over a loaded session", trt, "class,response_time,accuracy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the short second row is still a practice row
			path := testutil.WriteFile(t, t.TempDir(), "04_session.csv",
				tt.header+"\np,100,1\np,100\nreal,300,1\nreal,500,1\n")

			p, err := NewProcessor(tt.task)
			require.NoError(t, err)
			res, err := p.ProcessFile(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, 1, res.Malformed)
			assert.Equal(t, "400", res.Rows[0]["AvgRT-real"])
			variants := len(tt.task.EffectiveVariants())
			assert.Equal(t, 2*variants, res.Counts.Skipped)
			assert.Equal(t, 2*variants, res.Counts.Included, "both real trials kept")
		})
	}
}

func TestProcessFile_ClassifierColumnsRequired(t *testing.T) {
	tests := []struct {
		name   string
		task   Task
		header []string
	}{
		{"ldt without isword or image", LDT(), []string{"stim", "response_time", "accuracy"}},
		{"simon without alignment", Simon(), []string{"box_img", "response_time", "accuracy"}},
		{"field classifier without its column", Task{
			Name:       "custom",
			Pattern:    `.*\.csv`,
			GroupField: "label",
			Classifier: &classify.Spec{Kind: classify.KindField, Field: "cond"},
			Output:     "custom.csv",
		}, []string{"response_time", "accuracy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make([]string, len(tt.header))
			for i := range row {
				row[i] = "1"
			}
			path := testutil.WriteCSV(t, t.TempDir(), "01_session.csv", tt.header, [][]string{row})

			p, err := NewProcessor(tt.task)
			require.NoError(t, err)
			_, err = p.ProcessFile(context.Background(), path)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema), "got %v", err)
		})
	}
}

func TestNewProcessor_InvalidTask(t *testing.T) {
	_, err := NewProcessor(Task{Name: "broken"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestDirectoryOutlier(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, "a/01_TRT.csv", trtHeader, [][]string{{"x", "400", "1"}, {"x", "600", "1"}})
	testutil.WriteCSV(t, dir, "b/02_TRT.csv", trtHeader, [][]string{{"x", "500", "1"}})
	testutil.WriteCSV(t, dir, "notes.csv", trtHeader, [][]string{{"x", "99999", "1"}})

	pred, ref, err := DirectoryOutlier(dir, files.MustCompilePattern(`.*TRT.*\.csv`, false),
		trial.FieldResponseTime, filters.WithMaxSigma(1))
	require.NoError(t, err)

	assert.Equal(t, 3, ref.N)
	assert.Equal(t, 500.0, ref.Mean.Float)
	assert.Equal(t, 100.0, ref.StdDev.Float)
	assert.False(t, pred(trial.Trial{"response_time": "590"}))
	assert.True(t, pred(trial.Trial{"response_time": "601"}))

	_, _, err = DirectoryOutlier(filepath.Join(dir, "missing"), files.MustCompilePattern(`.*`, false), trial.FieldResponseTime)
	assert.Error(t, err)
}

func TestExampleTasksFile(t *testing.T) {
	tasks, err := LoadFile(filepath.Join("..", "..", "configs", "tasks.example.yaml"))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	registry := NewRegistry(tasks...)
	stroop, err := registry.Lookup("stroop")
	require.NoError(t, err)
	assert.True(t, stroop.UsesOutliers())
	assert.Equal(t, "7-trimmed", stroop.RowID(stroop.ParticipantID("7_stroop.xlsx"), stroop.Variants[1]))
}
