package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Signature is an identity with a timestamp, used for both a commit's
// author/committer and a tag's tagger (spec.md §3). The parser mirrors
// go-git's historical object.Signature / ParseSignature: name up to the
// last "<", email between "<"/">", then "seconds signed-offset-HHMM".
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// String renders the signature in the on-disk form
// "Name <email> seconds +HHMM".
func (s Signature) String() string {
	_, offset := s.When.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d",
		s.Name, s.Email, s.When.Unix(), sign, offset/3600, (offset%3600)/60)
}

// ParseSignature parses the on-disk form. It fails if the timestamp
// fields cannot be parsed as "seconds signed-offset-HHMM"
// (spec.md §4.B).
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature

	ltIdx := bytes.LastIndexByte(b, '<')
	gtIdx := bytes.LastIndexByte(b, '>')
	if ltIdx < 0 || gtIdx < 0 || gtIdx < ltIdx {
		return sig, fmt.Errorf("malformed signature %q: missing name/email delimiters", b)
	}

	sig.Name = string(bytes.TrimRight(b[:ltIdx], " "))
	sig.Email = string(b[ltIdx+1 : gtIdx])

	rest := bytes.TrimLeft(b[gtIdx+1:], " ")
	fields := bytes.Fields(rest)
	if len(fields) != 2 {
		return sig, fmt.Errorf("malformed signature timestamp %q", rest)
	}

	secs, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return sig, fmt.Errorf("malformed signature timestamp seconds %q: %w", fields[0], err)
	}

	offset := string(fields[1])
	if len(offset) != 5 || (offset[0] != '+' && offset[0] != '-') {
		return sig, fmt.Errorf("malformed signature timezone offset %q", offset)
	}
	hours, err := strconv.Atoi(offset[1:3])
	if err != nil {
		return sig, fmt.Errorf("malformed signature timezone offset %q: %w", offset, err)
	}
	mins, err := strconv.Atoi(offset[3:5])
	if err != nil {
		return sig, fmt.Errorf("malformed signature timezone offset %q: %w", offset, err)
	}
	totalSeconds := hours*3600 + mins*60
	if offset[0] == '-' {
		totalSeconds = -totalSeconds
	}

	loc := time.FixedZone(offset, totalSeconds)
	sig.When = time.Unix(secs, 0).In(loc)
	return sig, nil
}
