package fetcher

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	ErrNoFile           = errors.New("no file selected")
	ErrNotCSV           = errors.New("file is not a CSV")
	ErrMissingColumns   = errors.New("CSV is missing required columns")
	ErrInvalidModelType = errors.New("invalid model type")
)

// ModelTypes lists the model slots the backend accepts.
var ModelTypes = []string{"congestion", "incident", "disruption"}

// RequiredColumns must appear in the header of every uploaded CSV.
var RequiredColumns = []string{"latitude", "longitude"}

// ValidationError rejects an upload before any request is made. Its message is
// the guidance shown to the user.
type ValidationError struct {
	Err      error
	Guidance string
}

func (e *ValidationError) Error() string { return e.Guidance }
func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateCSV checks that path names a readable .csv file whose header carries
// the latitude and longitude columns.
func ValidateCSV(path string) error {
	if strings.TrimSpace(path) == "" || !isRegularFile(path) {
		return &ValidationError{Err: ErrNoFile, Guidance: "Please select a CSV file"}
	}
	if !strings.HasSuffix(path, ".csv") {
		return &ValidationError{Err: ErrNotCSV, Guidance: "File must be a CSV"}
	}

	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{Err: fmt.Errorf("%w: %v", ErrNoFile, err), Guidance: "Please select a CSV file"}
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return &ValidationError{Err: fmt.Errorf("%w: %v", ErrMissingColumns, err), Guidance: missingColumnsGuidance()}
	}

	seen := make(map[string]struct{}, len(header))
	for _, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		seen[col] = struct{}{}
	}
	for _, col := range RequiredColumns {
		if _, ok := seen[col]; !ok {
			return &ValidationError{Err: ErrMissingColumns, Guidance: missingColumnsGuidance()}
		}
	}
	return nil
}

// ValidateModel checks the model type and that the model file exists.
func ValidateModel(modelType, path string) error {
	if !isModelType(modelType) {
		return &ValidationError{
			Err:      fmt.Errorf("%w: %q", ErrInvalidModelType, modelType),
			Guidance: fmt.Sprintf("Invalid model type. Must be one of %v", ModelTypes),
		}
	}
	if strings.TrimSpace(path) == "" || !isRegularFile(path) {
		return &ValidationError{Err: ErrNoFile, Guidance: "Please select a model file (.pkl)"}
	}
	return nil
}

func isModelType(t string) bool {
	for _, m := range ModelTypes {
		if m == t {
			return true
		}
	}
	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func missingColumnsGuidance() string {
	return fmt.Sprintf("CSV must contain columns: %v", RequiredColumns)
}
