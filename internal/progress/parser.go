// Package progress turns the free-form diagnostic output of the external
// tools into normalized progress fractions.
package progress

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxLineBytes bounds the partial line kept between chunks. Longer lines are
// dropped; they never carry a progress marker we care about.
const maxLineBytes = 64 * 1024

var (
	// time=00:00:06.84 from -stats, out_time=00:00:06.840000 from -progress
	timeRegex = regexp.MustCompile(`(?:^|[\s,])(?:out_)?time=\s*(\d+):(\d{1,2}):(\d{1,2}(?:\.\d+)?)`)
	// out_time_us and out_time_ms are both microseconds in ffmpeg's -progress output
	outTimeMicrosRegex = regexp.MustCompile(`(?:^|[\s,])out_time_(?:us|ms)=\s*(\d+)`)
	percentRegex       = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
)

type format int

const (
	formatTranscode format = iota
	formatOptimize
)

// Parser is an incremental, line-oriented progress parser. It is not safe for
// concurrent use; one parser belongs to one process run.
type Parser struct {
	format  format
	total   time.Duration
	partial []byte
	// discarding is set while skipping the rest of an oversized line
	discarding bool
	last       float64
	seen       bool
}

// NewTranscodeParser returns a parser for the transcoder's time markers.
// total is the length of the clip being encoded.
func NewTranscodeParser(total time.Duration) *Parser {
	return &Parser{format: formatTranscode, total: total}
}

// NewOptimizeParser returns a parser for the optimizer's percent markers.
func NewOptimizeParser() *Parser {
	return &Parser{format: formatOptimize}
}

// Feed consumes a chunk of output and returns the new fractions it produced,
// in order. Each returned value is strictly greater than the previous one.
func (p *Parser) Feed(chunk []byte) []float64 {
	var out []float64
	for len(chunk) > 0 {
		i := bytes.IndexAny(chunk, "\r\n")
		if i < 0 {
			p.buffer(chunk)
			break
		}
		p.buffer(chunk[:i])
		chunk = chunk[i+1:]
		if p.discarding {
			p.discarding = false
			continue
		}
		if f, ok := p.line(string(p.partial)); ok {
			out = append(out, f)
		}
		p.partial = p.partial[:0]
	}
	return out
}

// Finish flushes a trailing unterminated line. When the process succeeded and
// an optimize parser saw no markers at all, it emits a single 1.0.
func (p *Parser) Finish(succeeded bool) []float64 {
	var out []float64
	if !p.discarding && len(p.partial) > 0 {
		if f, ok := p.line(string(p.partial)); ok {
			out = append(out, f)
		}
	}
	p.partial = p.partial[:0]
	p.discarding = false

	if succeeded && p.format == formatOptimize && !p.seen && p.last < 1 {
		p.last = 1
		p.seen = true
		out = append(out, 1)
	}
	return out
}

// Last returns the highest fraction produced so far.
func (p *Parser) Last() float64 {
	return p.last
}

func (p *Parser) buffer(b []byte) {
	if p.discarding {
		return
	}
	if len(p.partial)+len(b) > maxLineBytes {
		p.partial = p.partial[:0]
		p.discarding = true
		return
	}
	p.partial = append(p.partial, b...)
}

func (p *Parser) line(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}

	var f float64
	var ok bool
	switch p.format {
	case formatTranscode:
		f, ok = p.transcodeFraction(line)
	case formatOptimize:
		f, ok = optimizeFraction(line)
	}
	if !ok {
		return 0, false
	}
	p.seen = true

	f = math.Max(0, math.Min(1, f))
	if f <= p.last {
		return 0, false
	}
	p.last = f
	return f, true
}

func (p *Parser) transcodeFraction(line string) (float64, bool) {
	if p.total <= 0 {
		return 0, false
	}
	elapsed, ok := elapsedFromLine(line)
	if !ok {
		return 0, false
	}
	return elapsed.Seconds() / p.total.Seconds(), true
}

func elapsedFromLine(line string) (time.Duration, bool) {
	if matches := timeRegex.FindStringSubmatch(line); matches != nil {
		return hmsToDuration(matches[1], matches[2], matches[3], true)
	}
	if matches := outTimeMicrosRegex.FindStringSubmatch(line); matches != nil {
		us, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(us) * time.Microsecond, true
	}
	return 0, false
}

func optimizeFraction(line string) (float64, bool) {
	matches := percentRegex.FindStringSubmatch(line)
	if matches == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct / 100, true
}

// ParseTimestamp parses "HH:MM:SS", "HH:MM:SS.ms", "MM:SS" or plain seconds
// ("12", "12.5") into a duration. Without an hour field the minutes are not
// capped, so "75:00" is 75 minutes.
func ParseTimestamp(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	parts := strings.Split(value, ":")
	switch len(parts) {
	case 1:
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || secs < 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	case 2:
		return hmsToDuration("0", parts[0], parts[1], false)
	case 3:
		return hmsToDuration(parts[0], parts[1], parts[2], true)
	}
	return 0, false
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, ms%1000)
}

func hmsToDuration(hStr, mStr, sStr string, capMinutes bool) (time.Duration, bool) {
	h, err := strconv.Atoi(strings.TrimSpace(hStr))
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(mStr))
	if err != nil || m < 0 || (capMinutes && m > 59) {
		return 0, false
	}
	s, err := strconv.ParseFloat(strings.TrimSpace(sStr), 64)
	if err != nil || s < 0 || s >= 60 {
		return 0, false
	}
	total := float64(h)*3600 + float64(m)*60 + s
	return time.Duration(total * float64(time.Second)), true
}
