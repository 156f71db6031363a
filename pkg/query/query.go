// Package query composes upstream endpoint URLs from a base path and a set
// of query parameters.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Params maps query keys to their values. Values may be strings, any integer
// type, booleans or anything implementing fmt.Stringer.
type Params map[string]any

// Values converts the params into url.Values.
// Keys are visited in sorted order so the result is deterministic.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))

	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values.Set(key, format(p[key]))
	}
	return values
}

// Build returns base with params appended as an encoded query string.
//
// Example:
//
//	query.Build("https://feed.mix.sina.com.cn/api/roll/get", query.Params{"lid": 2674, "page": 1})
//	// https://feed.mix.sina.com.cn/api/roll/get?lid=2674&page=1
func Build(base string, params Params) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", base)
	}

	values := u.Query()
	for key, vs := range params.Values() {
		values[key] = vs
	}
	u.RawQuery = values.Encode()

	return u.String(), nil
}

func format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
