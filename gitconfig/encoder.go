package gitconfig

import (
	"fmt"
	"io"
	"strings"
)

// Encoder writes a Config back out in git-config's INI-like text form.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w} }

// Encode writes every section, subsection, and option of cfg.
func (e *Encoder) Encode(cfg *Config) error {
	for _, s := range cfg.Sections {
		if err := e.encodeSection(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSection(s *Section) error {
	if len(s.Options) > 0 || len(s.Subsections) == 0 {
		if _, err := fmt.Fprintf(e.w, "[%s]\n", s.Name); err != nil {
			return err
		}
		if err := e.encodeOptions(s.Options); err != nil {
			return err
		}
	}
	for _, ss := range s.Subsections {
		if _, err := fmt.Fprintf(e.w, "[%s %q]\n", s.Name, ss.Name); err != nil {
			return err
		}
		if err := e.encodeOptions(ss.Options); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeOptions(opts Options) error {
	for _, o := range opts {
		v := o.Value
		if strings.ContainsAny(v, " \t#;\"\\") {
			v = fmt.Sprintf("%q", v)
		}
		if _, err := fmt.Fprintf(e.w, "\t%s = %s\n", o.Key, v); err != nil {
			return err
		}
	}
	return nil
}
