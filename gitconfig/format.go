// Package gitconfig implements the ".git/config" INI-family file format
// (spec.md §10 ambient configuration) and a typed view of the handful
// of sections this module reads: core, user/author/committer identity,
// pack tuning, and remotes/branches needed by the transport and fetch
// path. Grounded on go-git's plumbing/format/config package (the
// Section/Subsection/Option model and gcfg-backed decoder) and
// config/config.go (the typed Core/User/Remotes/Branches unmarshalling).
package gitconfig

import "strings"

// NoSubsection is passed to Config.AddOption when no subsection name
// is wanted, matching go-git's plumbing/format/config.NoSubsection.
const NoSubsection = ""

// Config holds every section parsed from one config file.
type Config struct {
	Sections Sections
}

// New returns an empty Config.
func New() *Config { return &Config{} }

// Sections is an ordered list of Section.
type Sections []*Section

// Section is a named top-level block ("[core]", "[remote \"origin\"]"),
// holding its own options plus any subsections.
type Section struct {
	Name        string
	Options     Options
	Subsections Subsections
}

// Subsections is an ordered list of Subsection.
type Subsections []*Subsection

// Subsection is the quoted part of a section header ("origin" in
// "[remote \"origin\"]").
type Subsection struct {
	Name    string
	Options Options
}

// Option is a single "key = value" line.
type Option struct {
	Key   string
	Value string
}

// Options is an ordered list of Option.
type Options []*Option

// IsName reports whether name matches s's name case-insensitively,
// matching git's case-insensitive section-name matching.
func (s *Section) IsName(name string) bool {
	return strings.EqualFold(s.Name, name)
}

// IsName reports whether name matches ss's name case-sensitively,
// matching git's case-sensitive subsection-name matching.
func (ss *Subsection) IsName(name string) bool {
	return ss.Name == name
}

// Section returns the named section, creating it if absent.
func (c *Config) Section(name string) *Section {
	for _, s := range c.Sections {
		if s.IsName(name) {
			return s
		}
	}
	s := &Section{Name: name}
	c.Sections = append(c.Sections, s)
	return s
}

// HasSection reports whether name has already been parsed or created.
func (c *Config) HasSection(name string) bool {
	for _, s := range c.Sections {
		if s.IsName(name) {
			return true
		}
	}
	return false
}

// RemoveSection drops a section entirely.
func (c *Config) RemoveSection(name string) *Config {
	kept := Sections{}
	for _, s := range c.Sections {
		if !s.IsName(name) {
			kept = append(kept, s)
		}
	}
	c.Sections = kept
	return c
}

// Subsection returns the named subsection, creating it if absent.
func (s *Section) Subsection(name string) *Subsection {
	for _, ss := range s.Subsections {
		if ss.IsName(name) {
			return ss
		}
	}
	ss := &Subsection{Name: name}
	s.Subsections = append(s.Subsections, ss)
	return ss
}

// RemoveSubsection drops a named subsection.
func (s *Section) RemoveSubsection(name string) *Section {
	kept := Subsections{}
	for _, ss := range s.Subsections {
		if !ss.IsName(name) {
			kept = append(kept, ss)
		}
	}
	s.Subsections = kept
	return s
}

// AddOption appends a key/value pair, keeping any existing occurrences
// of key (git-config semantics allow multi-valued keys).
func (s *Section) AddOption(key, value string) *Section {
	s.Options = append(s.Options, &Option{Key: key, Value: value})
	return s
}

// SetOption replaces every existing occurrence of key with values.
func (s *Section) SetOption(key string, values ...string) *Section {
	s.Options = s.Options.withoutKey(key)
	for _, v := range values {
		s.Options = append(s.Options, &Option{Key: key, Value: v})
	}
	return s
}

// GetOption returns the last value stored for key, or "" if absent
// (git-config's "last one wins" rule for repeated keys).
func (s *Section) GetOption(key string) string { return s.Options.Get(key) }

// GetAllOptions returns every value stored for key, in file order.
func (s *Section) GetAllOptions(key string) []string { return s.Options.GetAll(key) }

// AddOption appends a key/value pair to a subsection.
func (ss *Subsection) AddOption(key, value string) *Subsection {
	ss.Options = append(ss.Options, &Option{Key: key, Value: value})
	return ss
}

// SetOption replaces every existing occurrence of key in a subsection.
func (ss *Subsection) SetOption(key string, values ...string) *Subsection {
	ss.Options = ss.Options.withoutKey(key)
	for _, v := range values {
		ss.Options = append(ss.Options, &Option{Key: key, Value: v})
	}
	return ss
}

// GetOption returns the last value stored for key in a subsection.
func (ss *Subsection) GetOption(key string) string { return ss.Options.Get(key) }

// GetAllOptions returns every value stored for key in a subsection.
func (ss *Subsection) GetAllOptions(key string) []string { return ss.Options.GetAll(key) }

// Get returns the last value stored under key, or "".
func (o Options) Get(key string) string {
	values := o.GetAll(key)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// GetAll returns every value stored under key, case-insensitively
// matching git-config's key matching.
func (o Options) GetAll(key string) []string {
	var values []string
	for _, opt := range o {
		if strings.EqualFold(opt.Key, key) {
			values = append(values, opt.Value)
		}
	}
	return values
}

func (o Options) withoutKey(key string) Options {
	kept := Options{}
	for _, opt := range o {
		if !strings.EqualFold(opt.Key, key) {
			kept = append(kept, opt)
		}
	}
	return kept
}

// AddOption adds an option to the given section/subsection, using
// NoSubsection when there is none.
func (c *Config) AddOption(section, subsection, key, value string) *Config {
	if subsection == NoSubsection {
		c.Section(section).AddOption(key, value)
	} else {
		c.Section(section).Subsection(subsection).AddOption(key, value)
	}
	return c
}
