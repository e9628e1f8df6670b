/*
Package rangelist parses and formats lists of CPU, core, and package numbers.

The accepted syntax is comma-separated individual numbers and inclusive
ranges, e.g. "1-4,7,8,10-12". The special keyword "all" expands to every
number in a caller-supplied universe.
*/
package rangelist

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// All is the keyword that selects every number known to the caller.
const All = "all"

var (
	// ErrSyntax indicates a token that is not a valid number or range.
	ErrSyntax = errors.New("invalid range syntax")
	// ErrEmpty indicates an empty list where one was required.
	ErrEmpty = errors.New("empty range")
	// ErrOutOfBounds indicates a number outside the allowed universe.
	ErrOutOfBounds = errors.New("number out of bounds")
)

// Parse parses a number list like "1-4,7,8,10-12" into a slice of
// non-negative integers. Duplicates are removed, first-seen order is
// preserved. The "all" keyword is not handled here, use Expand for that.
func Parse(list string) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, ErrEmpty
	}
	var result []int
	seen := make(map[int]bool)
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		first, last, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		for num := first; num <= last; num++ {
			if !seen[num] {
				seen[num] = true
				result = append(result, num)
			}
		}
	}
	return result, nil
}

// Expand is like Parse, but resolves the "all" keyword to every number in
// universe, in ascending order. Explicit lists are validated against the
// universe: a number outside it is an error naming the offending number.
func Expand(list string, universe []int) ([]int, error) {
	if strings.TrimSpace(list) == All {
		all := slices.Clone(universe)
		slices.Sort(all)
		return all, nil
	}
	nums, err := Parse(list)
	if err != nil {
		return nil, err
	}
	known := make(map[int]bool, len(universe))
	for _, num := range universe {
		known[num] = true
	}
	for _, num := range nums {
		if !known[num] {
			return nil, fmt.Errorf("%w: %d is not available, available: %s", ErrOutOfBounds, num, Rangify(universe))
		}
	}
	return nums, nil
}

// parseToken parses a single token, either "N" or "N-M", and returns the
// inclusive bounds it covers.
func parseToken(token string) (first int, last int, err error) {
	if token == "" {
		return 0, 0, fmt.Errorf("%w: empty token", ErrSyntax)
	}
	if idx := strings.Index(token, "-"); idx >= 0 {
		first, err = parseNum(token[:idx])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad range %q", ErrSyntax, token)
		}
		last, err = parseNum(token[idx+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad range %q", ErrSyntax, token)
		}
		if first > last {
			return 0, 0, fmt.Errorf("%w: range %q is descending", ErrSyntax, token)
		}
		return first, last, nil
	}
	first, err = parseNum(token)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad number %q", ErrSyntax, token)
	}
	return first, first, nil
}

func parseNum(s string) (int, error) {
	num, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if num < 0 {
		return 0, fmt.Errorf("negative number %d", num)
	}
	return num, nil
}

// Rangify formats a slice of numbers as a minimal range string, e.g.
// [0 1 2 3 5 7 8 9] becomes "0-3,5,7-9". The input is sorted first.
func Rangify(nums []int) string {
	if len(nums) == 0 {
		return ""
	}
	sorted := slices.Clone(nums)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var parts []string
	start := sorted[0]
	prev := sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, num := range sorted[1:] {
		if num != prev+1 {
			flush()
			start = num
		}
		prev = num
	}
	flush()
	return strings.Join(parts, ",")
}
