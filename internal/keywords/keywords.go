// Package keywords reads search keywords from arguments and files.
package keywords

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// FromArgs splits every argument on commas and drops empties and repeats.
func FromArgs(args ...string) []string {
	var out []string
	for _, a := range args {
		out = append(out, strings.Split(a, ",")...)
	}
	return Normalize(out)
}

// FromFile reads one keyword per line. Blank lines and lines starting with
// # are skipped.
func FromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return Normalize(out), nil
}

// Normalize trims keywords and removes empties and duplicates, keeping the
// first occurrence.
func Normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
