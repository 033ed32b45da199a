// Package ingest turns an uploaded CSV blob into board questions.
//
// The format is fixed: a header row of categories followed by groups of three rows
// (question, answer, image) per point tier. Cells are comma separated with no quoting.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"trivia-board-service/internal/domain"
)

const (
	msgTooShort            = "CSV file must contain at least a header row and one set of questions."
	msgNoCategories        = "No valid categories found in the header row."
	msgDuplicateCategories = "Duplicate categories found in the header row."
	msgBadFormat           = "Invalid CSV format. Each question must have three rows:"
	msgDefects             = "Validation errors found in CSV file:"
	msgNoQuestions         = "No valid questions found in the CSV file."
	msgAccepted            = "CSV file successfully uploaded!"
)

// FormatDetails explains the three-row group layout.
var FormatDetails = []string{
	"1. Question text",
	"2. Answer text",
	`3. Include an Image URL or type the word "none" in the cell`,
}

const rowsPerTier = 3

// Prober checks whether image URLs respond. Results are advisory.
type Prober interface {
	Probe(ctx context.Context, urls []string) map[string]bool
}

// Result bundles what one ingestion produced. Questions is empty unless Report.Accepted.
type Result struct {
	Questions  []domain.Question
	Categories []string
	Report     domain.ValidationReport
}

// Ingester parses and validates question sets.
type Ingester struct {
	prober Prober
}

// New returns an Ingester. prober may be nil to skip reachability checks.
func New(prober Prober) *Ingester {
	return &Ingester{prober: prober}
}

type imageCell struct {
	line   int
	column int
	url    string
}

// Ingest validates text and, when every check passes, emits the question records.
// Bad input never produces an error; only a cancelled ctx does.
func (i *Ingester) Ingest(ctx context.Context, text string) (Result, error) {
	lines := splitLines(text)
	if len(lines) < 2 {
		return rejected(msgTooShort, nil), nil
	}

	categories := splitHeader(lines[0])
	if len(categories) == 0 {
		return rejected(msgNoCategories, nil), nil
	}
	if dups := duplicates(categories); len(dups) > 0 {
		return rejected(msgDuplicateCategories, dups), nil
	}

	rows := lines[1:]
	if len(rows)%rowsPerTier != 0 {
		return rejected(msgBadFormat, FormatDetails), nil
	}

	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = splitCells(row)
	}

	var defects []string
	for r, row := range cells {
		if len(row) != len(categories) {
			defects = append(defects, fmt.Sprintf("Line %d has %d columns, but should have %d columns.",
				lineOf(r), len(row), len(categories)))
		}
	}

	var images []imageCell
	for r := 2; r < len(cells); r += rowsPerTier {
		for c, cell := range cells[r] {
			if cell == "" || IsNone(cell) {
				continue
			}
			if !IsImageReference(cell) {
				defects = append(defects, fmt.Sprintf("Invalid image URL on line %d, column %d: %s", lineOf(r), c+1, cell))
				continue
			}
			images = append(images, imageCell{line: lineOf(r), column: c + 1, url: cell})
		}
	}

	for r := 0; r < len(cells); r += rowsPerTier {
		for c, cell := range cells[r] {
			if cell == "" {
				defects = append(defects, fmt.Sprintf("Empty question on line %d, column %d", lineOf(r), c+1))
			}
		}
	}
	for r := 1; r < len(cells); r += rowsPerTier {
		for c, cell := range cells[r] {
			if cell == "" {
				defects = append(defects, fmt.Sprintf("Empty answer on line %d, column %d", lineOf(r), c+1))
			}
		}
	}

	if len(defects) > 0 {
		return rejected(msgDefects, defects), nil
	}

	questions := emit(categories, cells)
	if len(questions) == 0 {
		return rejected(msgNoQuestions, []string{"Please ensure the file follows the correct format."}), nil
	}

	warnings := i.probe(ctx, images)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	set := domain.CategoriesOf(questions)
	return Result{
		Questions:  questions,
		Categories: set,
		Report: domain.ValidationReport{
			Accepted:      true,
			Message:       msgAccepted,
			Warnings:      warnings,
			QuestionCount: len(questions),
			CategoryCount: len(set),
		},
	}, nil
}

func (i *Ingester) probe(ctx context.Context, images []imageCell) []string {
	if i.prober == nil || len(images) == 0 {
		return nil
	}

	urls := make([]string, 0, len(images))
	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		if _, ok := seen[img.url]; ok {
			continue
		}
		seen[img.url] = struct{}{}
		urls = append(urls, img.url)
	}

	reachable := i.prober.Probe(ctx, urls)

	var warnings []string
	for _, img := range images {
		if !reachable[img.url] {
			warnings = append(warnings, fmt.Sprintf("Image on line %d, column %d could not be reached: %s", img.line, img.column, img.url))
		}
	}
	return warnings
}

// emit walks tiers in ascending order and categories in header order.
func emit(categories []string, cells [][]string) []domain.Question {
	questions := make([]domain.Question, 0, len(categories)*len(cells)/rowsPerTier)
	for r := 0; r+2 < len(cells); r += rowsPerTier {
		points := (r/rowsPerTier + 1) * domain.PointsPerTier
		for c, category := range categories {
			question := cellAt(cells[r], c)
			answer := cellAt(cells[r+1], c)
			if question == "" || answer == "" {
				continue
			}
			image := cellAt(cells[r+2], c)
			if IsNone(image) {
				image = ""
			}
			questions = append(questions, domain.Question{
				Category: category,
				Points:   points,
				Question: question,
				Answer:   answer,
				ImageURL: image,
			})
		}
	}
	return questions
}

func rejected(message string, details []string) Result {
	return Result{
		Report: domain.ValidationReport{
			Message: message,
			Details: append([]string(nil), details...),
		},
	}
}

// lineOf maps a data row index to its 1-based line among non-blank lines.
func lineOf(row int) int {
	return row + 2
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitHeader(line string) []string {
	var categories []string
	for _, cell := range splitCells(line) {
		if cell != "" {
			categories = append(categories, cell)
		}
	}
	return categories
}

func splitCells(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func duplicates(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	var dups []string
	for _, c := range categories {
		if seen[c] {
			dups = append(dups, fmt.Sprintf("Category %q appears more than once.", c))
			continue
		}
		seen[c] = true
	}
	return dups
}
