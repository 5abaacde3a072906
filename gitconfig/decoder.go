package gitconfig

import (
	"io"

	"github.com/go-git/gcfg/v2"
)

// Decoder reads and decodes config files from an input stream, matching
// go-git's plumbing/format/config.Decoder.
type Decoder struct {
	io.Reader
}

// NewDecoder returns a decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r} }

// Decode reads the whole config from its input and stores it in cfg.
func (d *Decoder) Decode(cfg *Config) error {
	cb := func(s, ss, k, v string, _ bool) error {
		if ss == "" && k == "" {
			cfg.Section(s)
			return nil
		}
		if ss != "" && k == "" {
			cfg.Section(s).Subsection(ss)
			return nil
		}
		cfg.AddOption(s, ss, k, v)
		return nil
	}
	return gcfg.ReadWithCallback(d, cb)
}
