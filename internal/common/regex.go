package common

import (
	"regexp"
	"sync"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

// CompileRegex compiles pattern, reusing an earlier compilation of the same
// text. Failed compilations are not cached.
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// MatchRegex compiles and matches a regex pattern against a string.
// Returns true if the pattern matches anywhere in text, false otherwise.
// Returns an error if the pattern is invalid.
func MatchRegex(pattern, text string) (bool, error) {
	re, err := CompileRegex(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
