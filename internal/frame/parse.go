package frame

import (
	"math"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"
)

var (
	// ErrEmpty is returned for blank lines.
	ErrEmpty = errors.New("empty line")
	// ErrFieldCount is returned when a line does not carry exactly Channels values.
	ErrFieldCount = errors.New("wrong number of fields")
	// ErrNotNumeric is returned when a field does not parse as a number.
	ErrNotNumeric = errors.New("non-numeric field")
)

// SentenceType is the data type of the framed form, sent as "$PTACT,...*hh".
const SentenceType = "TACT"

// Sentence is the NMEA-framed form of a frame.
type Sentence struct {
	nmea.BaseSentence
	Frame RawFrame
}

var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		SentenceType: parseSentence,
	},
}

func parseSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	if len(s.Fields) != Channels {
		return nil, errors.Wrapf(ErrFieldCount, "got %d", len(s.Fields))
	}
	p := nmea.NewParser(s)
	out := Sentence{BaseSentence: s}
	for i, field := range s.Fields {
		if strings.TrimSpace(field) == "" {
			return nil, errors.Wrapf(ErrNotNumeric, "field %d is empty", i)
		}
		out.Frame[i] = p.Float64(i, "channel")
	}
	if err := p.Err(); err != nil {
		return nil, errors.Wrap(ErrNotNumeric, err.Error())
	}
	for i, v := range out.Frame {
		if !finite(v) {
			return nil, errors.Wrapf(ErrNotNumeric, "field %d is %v", i, v)
		}
	}
	return out, nil
}

// ParseLine decodes one text line into a frame. Plain lines are 12
// comma-separated numbers; lines starting with '$' are checksummed
// $PTACT sentences. Lines with any other field count or a non-numeric
// field are rejected.
func ParseLine(line string) (RawFrame, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return RawFrame{}, ErrEmpty
	}
	if line[0] == '$' {
		return parseFramed(line)
	}

	var f RawFrame
	n := 0
	for field := range strings.SplitSeq(line, ",") {
		if n == Channels {
			return RawFrame{}, errors.Wrapf(ErrFieldCount, "more than %d", Channels)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || !finite(v) {
			return RawFrame{}, errors.Wrapf(ErrNotNumeric, "field %d %q", n, field)
		}
		f[n] = v
		n++
	}
	if n != Channels {
		return RawFrame{}, errors.Wrapf(ErrFieldCount, "got %d", n)
	}
	return f, nil
}

// finite rejects the NaN and Inf spellings ParseFloat accepts.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseFramed(line string) (RawFrame, error) {
	s, err := sentenceParser.Parse(line)
	if err != nil {
		// the custom parser errors already carry a sentinel
		if errors.Is(err, ErrFieldCount) || errors.Is(err, ErrNotNumeric) {
			return RawFrame{}, err
		}
		return RawFrame{}, errors.Wrap(ErrNotNumeric, err.Error())
	}
	ts, ok := s.(Sentence)
	if !ok {
		return RawFrame{}, errors.Wrapf(ErrNotNumeric, "unexpected sentence %s", s.DataType())
	}
	return ts.Frame, nil
}

// FormatCSV renders f as a plain comma-separated line without newline.
func FormatCSV(f RawFrame) string {
	var b strings.Builder
	for i, v := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return b.String()
}

// FormatSentence renders f as a checksummed $PTACT sentence.
func FormatSentence(f RawFrame) string {
	body := "PTACT," + FormatCSV(f)
	return "$" + body + "*" + nmea.Checksum(body)
}
