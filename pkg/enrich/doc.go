// Package enrich derives extra attributes for collected records.
//
// The only classifier today is LocationClassifier, a keyword heuristic
// that tags posts relating to the United Kingdom or Nigeria with a country,
// an optional region and a coarse confidence (0.9, 0.6 or 0.3).
package enrich
