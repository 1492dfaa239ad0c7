package query

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/movie-rec/backend/internal/recommend"
)

var (
	ErrInvalidFilter = errors.New("invalid filter")

	validate = validator.New()
)

// DecodeFilter parses a filter in its external JSON shape. Surrounding prose
// and markdown code fences are tolerated, unknown keys are ignored, and the
// result is validated and normalized.
func DecodeFilter(data []byte) (recommend.StructuredFilter, error) {
	obj := extractObject(data)
	if obj == nil {
		return recommend.StructuredFilter{}, fmt.Errorf("%w: no JSON object found", ErrInvalidFilter)
	}

	var f recommend.StructuredFilter
	if err := json.Unmarshal(obj, &f); err != nil {
		return recommend.StructuredFilter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	if err := ValidateFilter(f); err != nil {
		return recommend.StructuredFilter{}, err
	}

	return f.Normalize(), nil
}

// ValidateFilter checks field ranges and list sizes.
func ValidateFilter(f recommend.StructuredFilter) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return nil
}

// extractObject returns the outermost {...} span, which drops code fences and
// any chatter a model wraps around its answer.
func extractObject(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end <= start {
		return nil
	}
	return data[start : end+1]
}
