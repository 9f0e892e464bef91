/***************************************************************
 *
 * Copyright (C) 2025, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package client

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

// hasMagic reports whether the path contains glob wildcard characters.
func hasMagic(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// globRoot returns the longest static path prefix of the pattern, ending
// at the last separator before the first wildcard segment.
func globRoot(pattern string) string {
	segments := strings.Split(pattern, "/")
	static := make([]string, 0, len(segments))
	for _, segment := range segments {
		if hasMagic(segment) {
			break
		}
		static = append(static, segment)
	}
	root := strings.Join(static, "/")
	if root == "" {
		root = "/"
	}
	return root
}

// globToRegexp translates a glob pattern into an anchored regular
// expression: `**` crosses path separators, `*` and `?` stay within one
// segment, and character classes pass through.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var builder strings.Builder
	builder.WriteString("^")

	runes := []rune(pattern)
	for idx := 0; idx < len(runes); idx++ {
		ch := runes[idx]
		switch ch {
		case '*':
			if idx+1 < len(runes) && runes[idx+1] == '*' {
				builder.WriteString(".*")
				idx++
			} else {
				builder.WriteString("[^/]*")
			}
		case '?':
			builder.WriteString("[^/]")
		case '[':
			end := idx + 1
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end >= len(runes) {
				// Unterminated class; treat the bracket literally
				builder.WriteString(regexp.QuoteMeta("["))
				continue
			}
			class := string(runes[idx+1 : end])
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			builder.WriteString("[" + class + "]")
			idx = end
		default:
			builder.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	builder.WriteString("$")

	compiled, err := regexp.Compile(builder.String())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to translate glob pattern %s", pattern)
	}
	return compiled, nil
}

// globDepth bounds the listing depth for a pattern: the number of
// pattern segments below the static root. A recursive wildcard makes the
// depth unbounded unless the caller supplied maxDepth, in which case the
// wildcard's own segments are swapped for the caller's bound.
func globDepth(pattern string, root string, maxDepth int) int {
	remainder := strings.TrimPrefix(pattern, root)
	remainder = strings.Trim(remainder, "/")
	depth := 1
	if remainder != "" {
		depth = strings.Count(remainder, "/") + 1
	}
	if idx := strings.Index(pattern, "**"); idx >= 0 {
		if maxDepth < 1 {
			return -1
		}
		doubleStarDepth := strings.Count(pattern[idx:], "/") + 1
		depth += maxDepth - doubleStarDepth
	}
	return depth
}

// Glob returns the namespace paths matching the pattern, with recursive
// wildcards descending without bound. A pattern with no wildcards
// short-circuits to an existence check.
func (ffs *FederatedFilesystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	return ffs.GlobWithDepth(ctx, pattern, -1)
}

// GlobWithDepth is Glob with the descent of recursive wildcards bounded
// to maxDepth levels (maxDepth < 1 means unbounded).
func (ffs *FederatedFilesystem) GlobWithDepth(ctx context.Context, pattern string, maxDepth int) ([]string, error) {
	objectPattern, _, err := ffs.checkFsPath(ctx, pattern)
	if err != nil {
		return nil, err
	}

	if !hasMagic(objectPattern) {
		exists, err := ffs.Exists(ctx, objectPattern)
		if err != nil {
			return nil, err
		}
		if !exists {
			return []string{}, nil
		}
		return []string{objectPattern}, nil
	}

	root := globRoot(objectPattern)
	matcher, err := globToRegexp(objectPattern)
	if err != nil {
		return nil, err
	}

	entries, err := ffs.Find(ctx, root, globDepth(objectPattern, root, maxDepth), true)
	if err != nil {
		return nil, err
	}

	matches := make([]string, 0)
	for _, entry := range entries {
		if matcher.MatchString(entry.Name) {
			matches = append(matches, entry.Name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}
