package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeAliases lowercases and trims aliases given as a comma separated
// list, rejecting any alias outside the alias grammar.
func NormalizeAliases(raw string) ([]string, error) {
	var out []string
	for _, a := range aliasSplit.Split(strings.ToLower(raw), -1) {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !aliasWord.MatchString(a) {
			return nil, fmt.Errorf("%w: %q", ErrMalformedAlias, a)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no aliases given", ErrMalformedAlias)
	}
	return out, nil
}

// AppendAlias adds an alias line for file to the alias file of a contributor
// folder under root. The file must already exist in that folder. It returns
// the line that was written.
func AppendAlias(root, aliasFile, contributor, file string, aliases []string) (string, error) {
	if aliasFile == "" {
		aliasFile = DefaultAliasFile
	}
	file = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(file), ":")))
	if !memeFilePattern.MatchString(file) {
		return "", fmt.Errorf("%w: %q is not a meme file name", ErrMalformedAlias, file)
	}
	if contributor == "" || strings.ContainsAny(contributor, `/\`) || strings.HasPrefix(contributor, ".") {
		return "", fmt.Errorf("catalog: invalid contributor folder %q", contributor)
	}
	if len(aliases) == 0 {
		return "", fmt.Errorf("%w: no aliases given", ErrMalformedAlias)
	}
	for _, a := range aliases {
		if !aliasWord.MatchString(a) {
			return "", fmt.Errorf("%w: %q", ErrMalformedAlias, a)
		}
	}

	dir := filepath.Join(root, contributor)
	if !hasMemeFile(dir, file) {
		return "", fmt.Errorf("catalog: %w: %s/%s", ErrNotInContributor, contributor, file)
	}

	line := fmt.Sprintf("%s: %s", file, strings.Join(aliases, ", "))
	if _, _, ok := ParseAliasLine(line); !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedAlias, line)
	}

	path := filepath.Join(dir, aliasFile)
	prefix := ""
	if existing, err := os.ReadFile(path); err == nil && len(existing) > 0 && existing[len(existing)-1] != '\n' {
		prefix = "\n"
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("catalog: opening alias file: %w", err)
	}
	if _, err := f.WriteString(prefix + line + "\n"); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("catalog: writing alias file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("catalog: closing alias file: %w", err)
	}
	return line, nil
}

// hasMemeFile reports whether dir holds a regular file whose name equals file
// ignoring case.
func hasMemeFile(dir, file string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(e.Name(), file) {
			return true
		}
	}
	return false
}
