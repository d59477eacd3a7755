// Package identifier parses user input into a ContentIdentifier and names
// the output directories derived from it.
package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bicodown/pkg/bvid"
)

// Kind tags the ContentIdentifier variants
type Kind int

const (
	KindVideo Kind = iota + 1
	KindEpisode
	KindSeason
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindEpisode:
		return "episode"
	case KindSeason:
		return "season"
	default:
		return "unknown"
	}
}

// ContentIdentifier names one comment section: a video by BV shortcode, or
// a bangumi episode or season by numeric id. The zero value is invalid.
type ContentIdentifier struct {
	kind Kind
	bvid string
	id   int64
}

// Video builds a video identifier
func Video(code string) ContentIdentifier {
	return ContentIdentifier{kind: KindVideo, bvid: code}
}

// Episode builds a bangumi episode identifier
func Episode(id int64) ContentIdentifier {
	return ContentIdentifier{kind: KindEpisode, id: id}
}

// Season builds a bangumi season identifier
func Season(id int64) ContentIdentifier {
	return ContentIdentifier{kind: KindSeason, id: id}
}

func (c ContentIdentifier) Kind() Kind { return c.kind }
func (c ContentIdentifier) BVID() string { return c.bvid }
func (c ContentIdentifier) ID() int64 { return c.id }
func (c ContentIdentifier) IsZero() bool { return c.kind == 0 }

// String renders the canonical code: BV…, EP… or SS…
func (c ContentIdentifier) String() string {
	switch c.kind {
	case KindVideo:
		return c.bvid
	case KindEpisode:
		return "EP" + strconv.FormatInt(c.id, 10)
	case KindSeason:
		return "SS" + strconv.FormatInt(c.id, 10)
	default:
		return ""
	}
}

// ErrUnrecognized is returned when input matches no supported format
var ErrUnrecognized = errors.New("unrecognized bilibili link or code")

var (
	videoURL   = regexp.MustCompile(`(?:bilibili\.com/video|b23\.tv)/([A-Za-z0-9]+)`)
	episodeURL = regexp.MustCompile(`bilibili\.com/bangumi/play/(?:ss\d+.*)?ep(\d+)`)
	seasonURL  = regexp.MustCompile(`bilibili\.com/bangumi/play/ss(\d+)`)
	avCode     = regexp.MustCompile(`^(?i:av)(\d+)$`)
)

// Parse accepts video and bangumi URLs, b23.tv links that carry a BV code,
// and raw BV…, av…, EP…/ep… and SS…/ss… codes.
func Parse(input string) (ContentIdentifier, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return ContentIdentifier{}, ErrUnrecognized
	}

	if m := videoURL.FindStringSubmatch(s); m != nil {
		if strings.HasPrefix(m[1], "BV") {
			return Video(m[1]), nil
		}
		if m := avCode.FindStringSubmatch(m[1]); m != nil {
			return fromAV(m[1])
		}
	}
	if m := episodeURL.FindStringSubmatch(s); m != nil {
		return numeric(KindEpisode, m[1])
	}
	if m := seasonURL.FindStringSubmatch(s); m != nil {
		return numeric(KindSeason, m[1])
	}

	switch {
	case strings.HasPrefix(s, "BV"):
		return Video(s), nil
	case strings.HasPrefix(s, "EP"), strings.HasPrefix(s, "ep"):
		return numeric(KindEpisode, s[2:])
	case strings.HasPrefix(s, "SS"), strings.HasPrefix(s, "ss"):
		return numeric(KindSeason, s[2:])
	}
	if m := avCode.FindStringSubmatch(s); m != nil {
		return fromAV(m[1])
	}

	return ContentIdentifier{}, fmt.Errorf("%w: %q", ErrUnrecognized, input)
}

func numeric(kind Kind, digits string) (ContentIdentifier, error) {
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return ContentIdentifier{}, fmt.Errorf("%w: bad %s id %q", ErrUnrecognized, kind, digits)
	}
	return ContentIdentifier{kind: kind, id: id}, nil
}

func fromAV(digits string) (ContentIdentifier, error) {
	aid, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return ContentIdentifier{}, fmt.Errorf("%w: bad av id %q", ErrUnrecognized, digits)
	}
	code, err := bvid.Encode(aid)
	if err != nil {
		return ContentIdentifier{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	return Video(code), nil
}
