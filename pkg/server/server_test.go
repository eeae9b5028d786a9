package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nzoschke/beateval/pkg/eval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	r := eval.NewResults()
	r.Append("beatles", eval.Scores{FMeasure: 0.8}, eval.Scores{FMeasure: 0.4})
	r.Append("beatles", eval.Scores{FMeasure: 0.6}, eval.Scores{FMeasure: 0.2})
	r.Add("ballroom")
	require.NoError(t, r.WriteJSON(filepath.Join(dir, "test.json")))
	require.NoError(t, r.WriteJSON(filepath.Join(dir, "tcn", "test.json")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("[1,2"), 0644))
	return dir
}

func get(t *testing.T, dir, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	New(dir).ServeHTTP(rec, req)
	return rec
}

func TestListResults(t *testing.T) {
	rec := get(t, resultsDir(t), "/api/results")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "tcn/test.json", summaries[0].Path)
	assert.Equal(t, "test.json", summaries[1].Path)

	beatles := summaries[1].Datasets["beatles"]
	assert.Equal(t, 2, beatles.Examples)
	require.NotNil(t, beatles.BeatF1)
	assert.InDelta(t, 0.7, *beatles.BeatF1, 1e-9)
	assert.InDelta(t, 0.3, *beatles.DownbeatF1, 1e-9)

	ballroom := summaries[1].Datasets["ballroom"]
	assert.Equal(t, 0, ballroom.Examples)
	assert.Nil(t, ballroom.BeatF1)
}

func TestServeResult(t *testing.T) {
	dir := resultsDir(t)

	rec := get(t, dir, "/api/results/tcn/test.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var r eval.Results
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, []float64{0.8, 0.6}, r["beatles"].FMeasure.Beat)

	cases := map[string]int{
		"/api/results/missing.json":     http.StatusNotFound,
		"/api/results/notes.txt":        http.StatusForbidden,
		"/api/results/tcn":              http.StatusForbidden,
		"/api/results/..%2Fsecret.json": http.StatusForbidden,
		"/api/results/broken.json":      http.StatusInternalServerError,
	}
	for target, code := range cases {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, code, get(t, dir, target).Code)
		})
	}
}
