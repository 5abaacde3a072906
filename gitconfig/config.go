package gitconfig

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"dario.cat/mergo"
)

// DefaultPackWindow is the delta-compression window size assumed when
// pack.window is unset, matching git's own default.
const DefaultPackWindow = uint(10)

// DefaultFileMode is core.filemode's assumed value when unset.
const DefaultFileMode = true

// ErrRemoteConfigEmptyURL is returned when a remote config has no URL.
var ErrRemoteConfigEmptyURL = errors.New("remote config: empty URL")

// ErrRemoteConfigEmptyName is returned when a remote config has no name.
var ErrRemoteConfigEmptyName = errors.New("remote config: empty name")

// RepoConfig is the typed repository configuration this module reads
// and writes, a deliberately trimmed counterpart of go-git's own
// config.Config: just the sections the object store, index, and
// transport layers actually consult.
type RepoConfig struct {
	Core struct {
		IsBare   bool
		Worktree string
		FileMode bool
	}
	User struct {
		Name  string
		Email string
	}
	Author struct {
		Name  string
		Email string
	}
	Committer struct {
		Name  string
		Email string
	}
	Pack struct {
		Window uint
	}
	Remotes  map[string]*RemoteConfig
	Branches map[string]*BranchConfig

	Raw *Config
}

// RemoteConfig describes one "[remote \"name\"]" subsection.
type RemoteConfig struct {
	Name  string
	URLs  []string
	Fetch []string
}

func (r *RemoteConfig) validate() error {
	if r.Name == "" {
		return ErrRemoteConfigEmptyName
	}
	if len(r.URLs) == 0 {
		return ErrRemoteConfigEmptyURL
	}
	return nil
}

// BranchConfig describes one "[branch \"name\"]" subsection.
type BranchConfig struct {
	Name   string
	Remote string
	Merge  string
}

// NewRepoConfig returns an empty config with git's documented defaults
// already filled in.
func NewRepoConfig() *RepoConfig {
	c := &RepoConfig{
		Remotes:  make(map[string]*RemoteConfig),
		Branches: make(map[string]*BranchConfig),
		Raw:      New(),
	}
	c.Core.FileMode = DefaultFileMode
	c.Pack.Window = DefaultPackWindow
	return c
}

// ReadRepoConfig parses a config file from r.
func ReadRepoConfig(r io.Reader) (*RepoConfig, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := NewRepoConfig()
	if err := c.Unmarshal(b); err != nil {
		return nil, err
	}
	return c, nil
}

// Unmarshal decodes a git-config file and populates every typed field.
func (c *RepoConfig) Unmarshal(b []byte) error {
	c.Raw = New()
	if err := NewDecoder(bytes.NewReader(b)).Decode(c.Raw); err != nil {
		return err
	}

	core := c.Raw.Section("core")
	c.Core.IsBare = core.GetOption("bare") == "true"
	c.Core.Worktree = core.GetOption("worktree")
	c.Core.FileMode = core.GetOption("filemode") != "false"

	c.User.Name = c.Raw.Section("user").GetOption("name")
	c.User.Email = c.Raw.Section("user").GetOption("email")
	c.Author.Name = c.Raw.Section("author").GetOption("name")
	c.Author.Email = c.Raw.Section("author").GetOption("email")
	c.Committer.Name = c.Raw.Section("committer").GetOption("name")
	c.Committer.Email = c.Raw.Section("committer").GetOption("email")

	c.Pack.Window = DefaultPackWindow
	if w := c.Raw.Section("pack").GetOption("window"); w != "" {
		v, err := strconv.ParseUint(w, 10, 32)
		if err != nil {
			return err
		}
		c.Pack.Window = uint(v)
	}

	for _, sub := range c.Raw.Section("remote").Subsections {
		r := &RemoteConfig{
			Name:  sub.Name,
			URLs:  sub.GetAllOptions("url"),
			Fetch: sub.GetAllOptions("fetch"),
		}
		c.Remotes[r.Name] = r
	}

	for _, sub := range c.Raw.Section("branch").Subsections {
		b := &BranchConfig{
			Name:   sub.Name,
			Remote: sub.GetOption("remote"),
			Merge:  sub.GetOption("merge"),
		}
		c.Branches[b.Name] = b
	}

	return nil
}

// Marshal re-renders the typed fields back into Raw and encodes it.
func (c *RepoConfig) Marshal() ([]byte, error) {
	if c.Raw == nil {
		c.Raw = New()
	}

	core := c.Raw.Section("core")
	core.SetOption("bare", boolString(c.Core.IsBare))
	if c.Core.Worktree != "" {
		core.SetOption("worktree", c.Core.Worktree)
	}
	core.SetOption("filemode", boolString(c.Core.FileMode))

	if c.User.Name != "" || c.User.Email != "" {
		u := c.Raw.Section("user")
		u.SetOption("name", c.User.Name)
		u.SetOption("email", c.User.Email)
	}

	c.Raw.Section("pack").SetOption("window", strconv.FormatUint(uint64(c.Pack.Window), 10))

	remote := c.Raw.Section("remote")
	for _, r := range c.Remotes {
		sub := remote.Subsection(r.Name)
		sub.SetOption("url", r.URLs...)
		if len(r.Fetch) > 0 {
			sub.SetOption("fetch", r.Fetch...)
		}
	}

	branch := c.Raw.Section("branch")
	for _, b := range c.Branches {
		sub := branch.Subsection(b.Name)
		if b.Remote != "" {
			sub.SetOption("remote", b.Remote)
		}
		if b.Merge != "" {
			sub.SetOption("merge", b.Merge)
		}
	}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(c.Raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks every remote is internally consistent. Branches are
// not checked.
func (c *RepoConfig) Validate() error {
	for name, r := range c.Remotes {
		if r.Name != name {
			return ErrRemoteConfigEmptyName
		}
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Merge combines src into dst, with src's set fields overriding dst's,
// via dario.cat/mergo (the scope/precedence library go-git's own
// config merging is named after in SPEC_FULL.md §11, used here instead
// of config.go's hand-rolled reflect.Value walk since the dependency
// already exists for exactly this purpose).
func Merge(dst, src *RepoConfig) (*RepoConfig, error) {
	if dst == nil {
		dst = NewRepoConfig()
	}
	if src == nil {
		return dst, nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return nil, err
	}
	return dst, nil
}
