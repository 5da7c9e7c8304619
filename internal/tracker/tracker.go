// Package tracker implements the HTTP tracker query of spec.md §6: a GET to
// the announce URL with the standard parameter set and compact peer-list
// decoding. UDP trackers are an explicit non-goal. Grounded on the teacher's
// internal/peer/peers.go and alice's file/tracker.go httpRequestPeers path
// (alice's UDP fallback and DHT lookup are both out of scope here). The
// retry loop is paced through the same golang.org/x/time/rate.Limiter the
// scheduler uses to pace peer dials, grounded on the rate.Limiter pattern in
// other_examples/osvalois-tod-p2m__types.go.
package tracker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bitleech/internal/bencode"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	// ErrTracker covers a non-2xx response, a transport failure, or a
	// reply missing the "peers" key.
	ErrTracker = errors.New("tracker request failed")
	// ErrNoPeers means the tracker answered successfully with zero peers.
	ErrNoPeers = errors.New("tracker returned no peers")
)

const defaultPort = 6881
const requestTimeout = 10 * time.Second

// maxAnnounceAttempts bounds the retry loop for a failed announce (a
// non-2xx response or a transport error). A tracker that answers but
// reports zero peers is not retried — that's a successful announce with
// nothing to report, not a failure.
const maxAnnounceAttempts = 3

// Query announces to announceURL and returns peer addresses in "ip:port"
// form. left is the remaining bytes to download; spec.md allows a
// placeholder (e.g. 999) when bootstrapping a magnet link whose total size
// isn't known yet. limiter, if non-nil, paces both the initial announce and
// any retries; pass nil to announce unthrottled.
func Query(announceURL string, infoHash, peerID [20]byte, left int64, limiter *rate.Limiter) ([]string, error) {
	params := url.Values{
		"info_hash":  []string{string(infoHash[:])},
		"peer_id":    []string{string(peerID[:])},
		"port":       []string{strconv.Itoa(defaultPort)},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"left":       []string{strconv.FormatInt(left, 10)},
		"compact":    []string{"1"},
	}
	reqURL := announceURL + "?" + params.Encode()
	client := &http.Client{Timeout: requestTimeout}

	var lastErr error
	for attempt := 0; attempt < maxAnnounceAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(context.Background()); err != nil {
				return nil, errors.Wrap(ErrTracker, err.Error())
			}
		}

		addrs, err := announceOnce(client, reqURL)
		if err == nil {
			return addrs, nil
		}
		if errors.Cause(err) == ErrNoPeers {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "tracker announce failed after %d attempts", maxAnnounceAttempts)
}

func announceOnce(client *http.Client, reqURL string) ([]string, error) {
	resp, err := client.Get(reqURL)
	if err != nil {
		return nil, errors.Wrap(ErrTracker, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrTracker, "tracker responded with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrTracker, err.Error())
	}

	v, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Wrap(ErrTracker, err.Error())
	}
	dict, err := v.Dict()
	if err != nil {
		return nil, errors.Wrap(ErrTracker, err.Error())
	}
	peersStr, err := dict.GetStr("peers")
	if err != nil {
		return nil, errors.Wrap(ErrTracker, `tracker response missing "peers"`)
	}

	addrs, err := decodeCompactPeers([]byte(peersStr))
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, ErrNoPeers
	}
	return addrs, nil
}

func decodeCompactPeers(peers []byte) ([]string, error) {
	if len(peers)%6 != 0 {
		return nil, errors.Wrapf(ErrTracker, "compact peers length %d is not a multiple of 6", len(peers))
	}
	addrs := make([]string, len(peers)/6)
	for i := 0; i*6 < len(peers); i++ {
		p := peers[i*6 : i*6+6]
		ip := net.IPv4(p[0], p[1], p[2], p[3])
		port := int(p[4])<<8 | int(p[5])
		addrs[i] = fmt.Sprintf("%s:%d", ip.String(), port)
	}
	return addrs, nil
}
