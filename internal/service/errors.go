package service

import "errors"

// ErrNoMatches is returned by aggregation when the cache holds zero matches
// for the player. Surfaced to HTTP callers as a 404; the job is left
// untouched.
var ErrNoMatches = errors.New("service: no matches found")
