// Package suites lists every test case the harness knows about.
package suites

import (
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/suites/secureboot"
	"github.com/foxboron/go-uefi-sct/suites/tcg2conf"
)

type Suite struct {
	Name  string
	Cases func() []*driver.TestCase
}

var registry = []Suite{
	{"tcg2", tcg2conf.TestCases},
	{"secureboot", secureboot.TestCases},
}

func All() []Suite {
	return slices.Clone(registry)
}

// Cases returns the test cases of every suite in registry order.
func Cases() []*driver.TestCase {
	var out []*driver.TestCase
	for _, s := range registry {
		out = append(out, s.Cases()...)
	}
	return out
}

// Select resolves names to test cases. A name is either a suite name or
// the name of a single test case, matched case-insensitively.
func Select(names ...string) ([]*driver.TestCase, error) {
	if len(names) == 0 {
		return Cases(), nil
	}
	var out []*driver.TestCase
	for _, name := range names {
		found, err := lookup(name)
		if err != nil {
			return nil, err
		}
		for _, tc := range found {
			if !slices.ContainsFunc(out, func(o *driver.TestCase) bool { return o.GUID == tc.GUID }) {
				out = append(out, tc)
			}
		}
	}
	return out, nil
}

func lookup(name string) ([]*driver.TestCase, error) {
	for _, s := range registry {
		if strings.EqualFold(s.Name, name) {
			return s.Cases(), nil
		}
	}
	for _, tc := range Cases() {
		if strings.EqualFold(tc.Name, name) || strings.EqualFold(tc.GUID.String(), name) {
			return []*driver.TestCase{tc}, nil
		}
	}
	return nil, errors.Errorf("unknown suite or test case %q", name)
}
