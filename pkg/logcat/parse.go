package logcat

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNoMatch means the line does not have the epoch,uid layout.
	ErrNoMatch = errors.New("line does not match logcat format")
	// ErrOverflow means sec*1000+millis does not fit in 64 bits.
	ErrOverflow = errors.New("timestamp overflows uint64")
)

// ParseError reports which field of a line was rejected.
type ParseError struct {
	Field string
	Line  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v: %q", e.Field, e.Err, e.Line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes one line of `logcat -v epoch,uid` output:
//
//	<spaces><sec>.<ms> <uid> <pid> <tid> <level> <tag> *: <msg>
//
// The match is anchored at the start of the line and needs at least one space
// of padding before the seconds. A trailing newline is ignored. Everything
// after the ": " separator is the message, verbatim.
func Parse(line string) (LogLine, error) {
	s := strings.TrimSuffix(line, "\n")
	s = strings.TrimSuffix(s, "\r")
	sc := scanner{s: s}

	fail := func(field string, err error) (LogLine, error) {
		return LogLine{}, &ParseError{Field: field, Line: line, Err: err}
	}

	if sc.spaces() == 0 {
		return fail("timestamp_sec", ErrNoMatch)
	}
	secText := sc.digits()
	if secText == "" || !sc.consume('.') {
		return fail("timestamp_sec", ErrNoMatch)
	}
	millisText := sc.digits()
	if len(millisText) != 3 || sc.spaces() == 0 {
		return fail("timestamp_millis", ErrNoMatch)
	}
	sec, err := strconv.ParseUint(secText, 10, 64)
	if err != nil {
		return fail("timestamp_sec", err)
	}
	millis, err := strconv.ParseUint(millisText, 10, 64)
	if err != nil {
		return fail("timestamp_millis", err)
	}
	if sec > (math.MaxUint64-millis)/1000 {
		return fail("timestamp", ErrOverflow)
	}

	uid := sc.token()
	if uid == "" || sc.spaces() == 0 {
		return fail("uid", ErrNoMatch)
	}

	pid, err := sc.uint32Field()
	if err != nil {
		return fail("pid", err)
	}
	tid, err := sc.uint32Field()
	if err != nil {
		return fail("tid", err)
	}

	level, ok := ParseLevel(sc.token())
	if !ok || sc.spaces() == 0 {
		return fail("level", ErrNoMatch)
	}

	tag, msg, ok := sc.tagAndMessage()
	if !ok {
		return fail("tag", ErrNoMatch)
	}

	return LogLine{
		Timestamp: sec*1000 + millis,
		UID:       uid,
		PID:       pid,
		TID:       tid,
		Level:     level,
		Tag:       tag,
		Msg:       msg,
	}, nil
}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) spaces() int {
	start := sc.pos
	for sc.pos < len(sc.s) && sc.s[sc.pos] == ' ' {
		sc.pos++
	}
	return sc.pos - start
}

func (sc *scanner) digits() string {
	start := sc.pos
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

func (sc *scanner) consume(b byte) bool {
	if sc.pos < len(sc.s) && sc.s[sc.pos] == b {
		sc.pos++
		return true
	}
	return false
}

// token returns the next run of non-whitespace bytes.
func (sc *scanner) token() string {
	start := sc.pos
	for sc.pos < len(sc.s) && !isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

// uint32Field reads a digit run followed by at least one space.
func (sc *scanner) uint32Field() (uint32, error) {
	text := sc.token()
	if text == "" || strings.TrimLeft(text, "0123456789") != "" || sc.spaces() == 0 {
		return 0, ErrNoMatch
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// tagAndMessage splits "<tag> *: <msg>". The tag is the whole next
// non-space run; when that run itself ends in ':' directly followed by a
// space, the colon is the separator instead.
func (sc *scanner) tagAndMessage() (tag, msg string, ok bool) {
	tok := sc.token()
	if tok == "" {
		return "", "", false
	}
	end := sc.pos
	sc.spaces()
	if sc.consume(':') && sc.consume(' ') {
		return tok, sc.s[sc.pos:], true
	}

	if len(tok) > 1 && strings.HasSuffix(tok, ":") && end < len(sc.s) && sc.s[end] == ' ' {
		return tok[:len(tok)-1], sc.s[end+1:], true
	}
	return "", "", false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\v' || b == '\f'
}
