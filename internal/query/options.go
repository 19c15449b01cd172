package query

import (
	"maps"
	"net/url"
)

// Options is the flat option map of one request, as read from its query
// string or form.
type Options map[string]string

// FromValues keeps the first value of every key.
func FromValues(v url.Values) Options {
	opts := make(Options, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			opts[k] = vals[0]
		}
	}
	return opts
}

// Clone returns an independent copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

// Resolve picks the options a request should run with, given the options
// cached for its session. It returns the effective options and the new
// cache value:
//
//   - resetQuery in the request drops the cache and runs unfiltered;
//   - a request carrying options runs with them and caches them;
//   - an empty request reuses the cache.
func Resolve(request, cached Options) (effective, cache Options) {
	if len(request) > 0 {
		if _, reset := request[OptResetQuery]; reset {
			return Options{}, nil
		}
		return request.Clone(), request.Clone()
	}
	if len(cached) > 0 {
		return cached.Clone(), cached.Clone()
	}
	return Options{}, nil
}
