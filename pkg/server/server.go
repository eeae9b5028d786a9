// Package server provides the Echo web server for browsing evaluation results.
package server

import (
	"io/fs"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nzoschke/beateval/pkg/eval"
)

// Summary describes one results file.
type Summary struct {
	Path     string                    `json:"path"`
	Datasets map[string]DatasetSummary `json:"datasets"`
}

// DatasetSummary holds the mean scores of one dataset. Means are omitted for
// datasets without examples.
type DatasetSummary struct {
	Examples   int      `json:"examples"`
	BeatF1     *float64 `json:"beat_f1,omitempty"`
	DownbeatF1 *float64 `json:"downbeat_f1,omitempty"`
}

// New builds the server for the results stored under dir.
func New(dir string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := &handler{dir: dir}
	e.GET("/api/results", h.listResults)
	e.GET("/api/results/*", h.serveResult)

	return e
}

// Run serves the results under dir on addr.
func Run(addr, dir string) error {
	return New(dir).Start(addr)
}

type handler struct {
	dir string
}

// listResults summarizes every results file under the results directory.
func (h *handler) listResults(c echo.Context) error {
	summaries := []Summary{}

	err := filepath.WalkDir(h.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".json" {
			return nil
		}

		results, err := eval.ReadResults(path)
		if err != nil {
			// Not a results file
			return nil
		}

		rel, err := filepath.Rel(h.dir, path)
		if err != nil {
			return err
		}
		summaries = append(summaries, summarize(filepath.ToSlash(rel), results))
		return nil
	})

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Path < summaries[j].Path })
	return c.JSON(http.StatusOK, summaries)
}

func summarize(path string, results eval.Results) Summary {
	s := Summary{Path: path, Datasets: map[string]DatasetSummary{}}
	for name, d := range results {
		beat, downbeat := results.Means(name)
		s.Datasets[name] = DatasetSummary{
			Examples:   len(d.FMeasure.Beat),
			BeatF1:     finite(beat),
			DownbeatF1: finite(downbeat),
		}
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// serveResult serves one results file from the results directory.
func (h *handler) serveResult(c echo.Context) error {
	path := c.Param("*")
	decodedPath, err := url.PathUnescape(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path encoding")
	}

	// Security: prevent directory traversal
	if strings.Contains(decodedPath, "..") {
		return echo.NewHTTPError(http.StatusForbidden, "invalid path")
	}
	fullPath := filepath.Join(h.dir, decodedPath)

	info, err := os.Stat(fullPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	if info.IsDir() {
		return echo.NewHTTPError(http.StatusForbidden, "cannot serve directory")
	}

	if strings.ToLower(filepath.Ext(decodedPath)) != ".json" {
		return echo.NewHTTPError(http.StatusForbidden, "file type not allowed")
	}

	results, err := eval.ReadResults(fullPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "invalid results JSON")
	}
	return c.JSON(http.StatusOK, results)
}
