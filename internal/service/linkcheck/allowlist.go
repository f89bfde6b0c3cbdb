// Package linkcheck rejects messages whose links point outside an allow-list of host globs.
package linkcheck

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`https?://\S+`)

// AllowList holds hostname glob patterns ("example.com", "*.example.org").
type AllowList struct {
	patterns []string
}

// NewAllowList validates and lower-cases patterns.
func NewAllowList(patterns []string) (*AllowList, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("bad host pattern %q: %w", p, err)
		}
		out = append(out, p)
	}
	return &AllowList{patterns: out}, nil
}

// Load reads one pattern per line. Blank lines and # comments are skipped.
func Load(file string) (*AllowList, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	return NewAllowList(lines)
}

// Allowed reports whether every link in text has a host matching some pattern.
// Text without links is always allowed.
func (a *AllowList) Allowed(text string) bool {
	for _, link := range linkPattern.FindAllString(text, -1) {
		if !a.hostAllowed(link) {
			return false
		}
	}
	return true
}

func (a *AllowList) hostAllowed(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, p := range a.patterns {
		if ok, _ := path.Match(p, host); ok {
			return true
		}
	}
	return false
}
