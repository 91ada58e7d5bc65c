// Package catalog builds the keyword index over a folder of meme images.
//
// The folder holds one subfolder per contributor. Every image file yields one
// Entry whose base keyword is derived from the file name; alias files (by
// default "react.txt") add extra keywords with lines of the form
//
//	filename.ext: alias one, alias two
//
// A built Catalog is immutable. Changes to the folder require a new Build.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ajitpratap0/memereact/internal/models"
)

const (
	// DefaultAliasFile is the name of the per-folder alias description file.
	DefaultAliasFile = "react.txt"

	// DefaultMaxDepth lets the scan reach root/<contributor>/<file>.
	DefaultMaxDepth = 2
)

var (
	// ErrMissingContributor is returned when a configured contributor has no folder.
	ErrMissingContributor = errors.New("contributor folder missing")

	// ErrUnknownFile is returned when an alias line names a file the scan did not find.
	ErrUnknownFile = errors.New("alias references unknown meme file")

	// ErrNotInContributor is returned when a memeify request names a file that
	// is not in the requester's folder.
	ErrNotInContributor = errors.New("meme file not found in contributor folder")

	// ErrMalformedAlias is returned for alias requests that do not fit the alias grammar.
	ErrMalformedAlias = errors.New("malformed alias")
)

const memeFileExpr = `[a-z_']+[0-9]*\.(?:jpg|png|gif)`

var (
	memeFilePattern  = regexp.MustCompile(`^([a-z_']+)[0-9]*\.(?:jpg|png|gif)$`)
	aliasLinePattern = regexp.MustCompile(`^(` + memeFileExpr + `): ([a-z ,']*)$`)
	aliasSplit       = regexp.MustCompile(`, *`)
	aliasWord        = regexp.MustCompile(`^[a-z ']+$`)
)

// Options controls a catalog build.
type Options struct {
	// Contributors lists the subfolders that must exist under the root.
	Contributors []string
	AliasFile    string
	MaxDepth     int
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.AliasFile == "" {
		o.AliasFile = DefaultAliasFile
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return o
}

// Catalog maps keywords to the entries they trigger.
type Catalog struct {
	root         string
	aliasFile    string
	contributors []string
	entries      []*models.Entry
	byID         map[string]*models.Entry
	index        map[string][]*models.Entry
	keywords     []string
}

// draft is an entry under construction.
type draft struct {
	entry    *models.Entry
	keywords map[string]struct{}
}

func (d *draft) add(kw string) {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return
	}
	d.keywords[kw] = struct{}{}
}

// Keyword derives the base keyword from an image file name. It returns false
// when the name is not a recognised meme file.
func Keyword(name string) (string, bool) {
	m := memeFilePattern.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return "", false
	}
	kw := strings.TrimSpace(strings.ReplaceAll(m[1], "_", " "))
	if kw == "" {
		return "", false
	}
	return kw, true
}

// ParseAliasLine splits an alias line into the file it refers to and its
// aliases. ok is false when the line does not match the grammar.
func ParseAliasLine(line string) (file string, aliases []string, ok bool) {
	m := aliasLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return "", nil, false
	}
	for _, a := range aliasSplit.Split(m[2], -1) {
		a = strings.TrimSpace(a)
		if a != "" {
			aliases = append(aliases, a)
		}
	}
	return m[1], aliases, true
}

// Build scans root and returns the finished catalog. It fails when a
// contributor folder is missing or an alias line names an unknown file; no
// partial catalog is returned in either case.
func Build(root string, opts Options) (*Catalog, error) {
	opts = opts.withDefaults()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolving root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: root %s is not a directory", abs)
	}

	if err := checkContributors(abs, opts.Contributors); err != nil {
		return nil, err
	}

	var (
		drafts     []*draft
		byFile     = make(map[string][]*draft)
		aliasPaths []string
	)

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == abs {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if depth >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if d.Name() == opts.AliasFile {
			aliasPaths = append(aliasPaths, path)
			return nil
		}
		kw, ok := Keyword(d.Name())
		if !ok {
			opts.Logger.Debug("skipping non-meme file", "path", rel)
			return nil
		}
		slashRel := filepath.ToSlash(rel)
		contributor := ""
		if i := strings.IndexByte(slashRel, '/'); i > 0 {
			contributor = slashRel[:i]
		}
		dr := &draft{
			entry: &models.Entry{
				ID:          slashRel,
				Path:        path,
				File:        d.Name(),
				Contributor: contributor,
			},
			keywords: make(map[string]struct{}),
		}
		dr.add(kw)
		drafts = append(drafts, dr)
		// Alias lines only name lowercase files; match them regardless of
		// the case on disk.
		key := strings.ToLower(d.Name())
		byFile[key] = append(byFile[key], dr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scanning %s: %w", abs, err)
	}

	sort.Strings(aliasPaths)
	for _, ap := range aliasPaths {
		if err := applyAliasFile(ap, byFile, opts.Logger); err != nil {
			return nil, err
		}
	}

	c := &Catalog{
		root:         abs,
		aliasFile:    opts.AliasFile,
		contributors: append([]string(nil), opts.Contributors...),
		entries:      make([]*models.Entry, 0, len(drafts)),
		byID:         make(map[string]*models.Entry, len(drafts)),
		index:        make(map[string][]*models.Entry),
	}
	for _, dr := range drafts {
		kws := make([]string, 0, len(dr.keywords))
		for kw := range dr.keywords {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		dr.entry.Keywords = kws

		c.entries = append(c.entries, dr.entry)
		c.byID[dr.entry.ID] = dr.entry
		for _, kw := range kws {
			c.index[kw] = append(c.index[kw], dr.entry)
		}
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].ID < c.entries[j].ID })
	for kw, list := range c.index {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		c.keywords = append(c.keywords, kw)
	}
	sort.Strings(c.keywords)

	opts.Logger.Info("catalog built", "root", abs, "entries", len(c.entries), "keywords", len(c.keywords), "alias_files", len(aliasPaths))
	return c, nil
}

func checkContributors(root string, contributors []string) error {
	var missing []string
	for _, name := range contributors {
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil || !info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("catalog: %w: %s", ErrMissingContributor, strings.Join(missing, ", "))
	}
	return nil
}

func applyAliasFile(path string, byFile map[string][]*draft, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: reading alias file %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for n, line := range strings.Split(string(data), "\n") {
		file, aliases, ok := ParseAliasLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				logger.Debug("skipping malformed alias line", "file", path, "line", n+1)
			}
			continue
		}
		candidates := byFile[file]
		if len(candidates) == 0 {
			return fmt.Errorf("catalog: %w: %s (%s:%d)", ErrUnknownFile, file, path, n+1)
		}
		target := candidates[0]
		for _, c := range candidates {
			if filepath.Dir(c.entry.Path) == dir {
				target = c
				break
			}
		}
		for _, a := range aliases {
			target.add(a)
		}
	}
	return nil
}

// LookupExact returns the entries carrying keyword. The result must not be modified.
func (c *Catalog) LookupExact(keyword string) []*models.Entry {
	return c.index[keyword]
}

// Keywords returns every keyword in the catalog, sorted.
func (c *Catalog) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// Entries returns all entries sorted by ID.
func (c *Catalog) Entries() []*models.Entry {
	out := make([]*models.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Entry returns the entry with the given ID.
func (c *Catalog) Entry(id string) (*models.Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Root returns the absolute catalog root.
func (c *Catalog) Root() string { return c.root }

// AliasFile returns the alias file name the catalog was built with.
func (c *Catalog) AliasFile() string { return c.aliasFile }

// Contributors returns the contributor folders the catalog was checked against.
func (c *Catalog) Contributors() []string {
	return append([]string(nil), c.contributors...)
}
