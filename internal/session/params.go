package session

import (
	"net/url"
	"strings"
)

// ParseURLParams flattens a raw query string into a key/value map. A key
// repeated in the query keeps its last value. The result is never nil.
func ParseURLParams(rawQuery string) map[string]string {
	params := make(map[string]string)
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil && len(values) == 0 {
		return params
	}
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		params[k] = vs[len(vs)-1]
	}
	return params
}
