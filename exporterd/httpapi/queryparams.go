package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/coder/activity-exporter/exportersdk"
)

// QueryParamParser is a helper for parsing all query params and gathering all
// errors in 1 sweep. This means all invalid fields are returned at once,
// rather than only returning the first error
type QueryParamParser struct {
	// Errors is the set of errors to return via the API. If the length
	// of this set is 0, there are no errors!.
	Errors []exportersdk.ValidationError
}

func NewQueryParamParser() *QueryParamParser {
	return &QueryParamParser{
		Errors: []exportersdk.ValidationError{},
	}
}

func (p *QueryParamParser) Boolean(vals url.Values, def bool, queryParam string) bool {
	v, err := parseQueryParam(vals, strconv.ParseBool, def, queryParam)
	if err != nil {
		p.Errors = append(p.Errors, exportersdk.ValidationError{
			Field:  queryParam,
			Detail: fmt.Sprintf("Query param %q must be a valid boolean (%s)", queryParam, err.Error()),
		})
	}
	return v
}

func parseQueryParam[T any](vals url.Values, parse func(v string) (T, error), def T, queryParam string) (T, error) {
	if !vals.Has(queryParam) || strings.TrimSpace(vals.Get(queryParam)) == "" {
		return def, nil
	}
	str := strings.TrimSpace(vals.Get(queryParam))
	v, err := parse(str)
	if err != nil {
		return def, xerrors.Errorf("parse %q: %w", str, err)
	}
	return v, nil
}
