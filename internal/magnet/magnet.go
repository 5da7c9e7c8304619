// Package magnet parses magnet links per spec.md §6: "magnet:?xt=urn:btih:
// <40-hex-info-hash>&dn=<name>&tr=<url-encoded-tracker>", tolerant of
// parameter reordering and repeated tr entries (first wins). No example
// repo parses magnet links directly, so this is built from the spec,
// reusing net/url the way the rest of the pack reaches for it to build or
// parse tracker query strings.
package magnet

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformed wraps any link missing a recognizable btih xt parameter.
var ErrMalformed = errors.New("malformed magnet link")

// Link is a parsed magnet URI.
type Link struct {
	InfoHash   [20]byte
	Name       string
	TrackerURL string
}

// Parse parses a "magnet:?..." URI.
func Parse(raw string) (*Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if u.Scheme != "magnet" {
		return nil, errors.Wrapf(ErrMalformed, "unexpected scheme %q", u.Scheme)
	}

	q := u.Query()

	xt := q.Get("xt")
	const prefix = "urn:btih:"
	if !strings.HasPrefix(xt, prefix) {
		return nil, errors.Wrap(ErrMalformed, `missing or unrecognized "xt" parameter`)
	}
	hexHash := strings.TrimPrefix(xt, prefix)
	raw20, err := hex.DecodeString(hexHash)
	if err != nil || len(raw20) != 20 {
		return nil, errors.Wrapf(ErrMalformed, "xt info hash %q is not 40 hex characters", hexHash)
	}

	link := &Link{Name: q.Get("dn")}
	copy(link.InfoHash[:], raw20)

	if trs := q["tr"]; len(trs) > 0 {
		link.TrackerURL = trs[0]
	}

	return link, nil
}
