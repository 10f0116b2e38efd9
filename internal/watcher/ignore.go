package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFile names the file in the watched root that lists paths to skip,
// one gitignore-style pattern per line.
const IgnoreFile = ".iiifignore"

// Ignore matches paths below the watched root against ignore patterns.
// The last matching pattern wins; "!" patterns re-include.
type Ignore struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// ParseIgnore reads patterns from r. Blank lines and "#" comments are
// skipped.
func ParseIgnore(r io.Reader) (*Ignore, error) {
	ig := &Ignore{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ig.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore patterns: %w", err)
	}
	return ig, nil
}

// LoadIgnore reads root/.iiifignore. A missing file yields nil.
func LoadIgnore(root string) (*Ignore, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", IgnoreFile, err)
	}
	defer func() { _ = f.Close() }()
	return ParseIgnore(f)
}

func (ig *Ignore) add(line string) {
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}
	var r ignoreRule
	if strings.HasPrefix(p, "!") {
		r.negate = true
		p = p[1:]
	}
	p = strings.TrimPrefix(p, `\`)
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	// A slash other than a trailing one anchors the pattern to the root.
	if strings.Contains(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	if p == "" {
		return
	}
	r.re = regexp.MustCompile("^" + globToRegex(p) + "$")
	ig.rules = append(ig.rules, r)
}

// Match reports whether rel, a slash or OS separated path relative to the
// root, is ignored. A file inside an ignored directory is ignored.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	if ig == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")

	ignored := false
	for _, r := range ig.rules {
		if r.matches(parts, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) matches(parts []string, isDir bool) bool {
	last := len(parts) - 1
	for i := range parts {
		// parts[:i+1] is a directory unless it is the path itself.
		dir := i < last || isDir
		if r.dirOnly && !dir {
			continue
		}
		candidate := parts[i]
		if r.anchored {
			candidate = strings.Join(parts[:i+1], "/")
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// globToRegex translates *, ** and ? and escapes everything else.
func globToRegex(p string) string {
	var sb strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				if i+2 < len(p) && p[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
				} else {
					sb.WriteString(".*")
					i++
				}
				continue
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '\\':
			if i+1 < len(p) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(p[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
