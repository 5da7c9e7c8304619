// Package scheduler implements the concurrent multi-peer piece-download
// scheduler of spec.md §4.7: one worker goroutine per peer address, a shared
// queue.Queue coordinating piece assignment, and disjoint-range writes into
// one output buffer. Grounded on alice/download.go's startDownloader/
// assemblePieces/downloadProgress (channel-fed workers, a uiprogress bar
// driven by pieces-done), adapted to pull from queue.Queue instead of a
// channel so acquisition can respect each peer's bitfield, and to rate-limit
// dials the way other_examples/osvalois-tod-p2m__types.go paces work with
// golang.org/x/time/rate.
package scheduler

import (
	"context"
	"strconv"
	"sync"

	"bitleech/internal/peer"
	"bitleech/internal/queue"
	"bitleech/internal/torrentfile"

	"github.com/gosuri/uiprogress"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrDownloadIncomplete means every worker exited but the queue still has
// pieces neither downloaded nor in flight.
var ErrDownloadIncomplete = errors.New("download incomplete: pieces remain after all workers exited")

// DefaultWorkers is spec.md's default worker count W.
const DefaultWorkers = 4

// Options configures a Run call. Zero values are replaced with spec.md's
// defaults.
type Options struct {
	Workers       int
	PipelineDepth int
	ShowProgress  bool
	DialLimiter   *rate.Limiter
	Log           *zerolog.Logger
}

// Run drives a full leech download: it dispatches up to Workers peer
// sessions (bounded by len(peerAddrs)), each pulling pieces it owns from a
// shared queue until the queue is drained or the connection dies, and
// returns the assembled, fully-verified file bytes.
func Run(mi *torrentfile.Metainfo, peerAddrs []string, localID [20]byte, opts Options) ([]byte, error) {
	if len(peerAddrs) == 0 {
		return nil, errors.New("no peers to schedule workers against")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(peerAddrs) {
		workers = len(peerAddrs)
	}
	pipelineDepth := opts.PipelineDepth
	if pipelineDepth <= 0 {
		pipelineDepth = peer.DefaultPipelineDepth
	}
	logger := opts.Log
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	q := queue.New(mi.NumPieces())
	buf := make([]byte, mi.TotalLength)

	var bar *uiprogress.Bar
	if opts.ShowProgress {
		uiprogress.Start()
		bar = uiprogress.AddBar(mi.NumPieces())
		bar.AppendCompleted()
		bar.AppendFunc(func(*uiprogress.Bar) string {
			return "pieces: " + strconv.Itoa(mi.NumPieces()-q.Remaining()) + "/" + strconv.Itoa(mi.NumPieces())
		})
		bar.AppendElapsed()
	}

	var (
		mu      sync.Mutex
		lastErr error
		wg      sync.WaitGroup
	)

	for _, addr := range peerAddrs[:workers] {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if opts.DialLimiter != nil {
				if err := opts.DialLimiter.Wait(context.Background()); err != nil {
					return
				}
			}
			if err := runWorker(addr, mi, localID, q, buf, pipelineDepth, bar, logger); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				logger.Debug().Str("peer", addr).Err(err).Msg("worker exited")
			}
		}(addr)
	}
	wg.Wait()

	if opts.ShowProgress {
		uiprogress.Stop()
	}

	if q.Remaining() > 0 {
		if lastErr != nil {
			return nil, errors.Wrap(ErrDownloadIncomplete, lastErr.Error())
		}
		return nil, ErrDownloadIncomplete
	}
	return buf, nil
}

// runWorker implements spec.md §4.7 step 2: handshake, wait for unchoke,
// then acquire-fetch-verify-write in a loop until the queue has nothing left
// this peer owns or a fetch fails. A piece that fails verification is
// released for another worker and this worker's connection is closed.
func runWorker(addr string, mi *torrentfile.Metainfo, localID [20]byte, q *queue.Queue, buf []byte, pipelineDepth int, bar *uiprogress.Bar, logger *zerolog.Logger) error {
	sess, err := peer.Dial(addr, mi.InfoHash, localID, mi.NumPieces(), false)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.SendInterested(); err != nil {
		return err
	}
	if err := sess.AwaitUnchoke(); err != nil {
		return err
	}

	for {
		index, ok := q.Acquire(sess.HasPiece)
		if !ok {
			return nil
		}

		length := mi.PieceLen(index)
		data, err := sess.FetchPiece(index, length, mi.PieceDigests[index], pipelineDepth)
		if err != nil {
			q.Release(index)
			if errors.Cause(err) == peer.ErrPieceCorrupt {
				logger.Warn().Str("peer", addr).Int("piece", index).Msg("piece failed verification, retrying elsewhere")
			}
			return err
			return err
		}

		begin := index * int(mi.PieceLength)
		copy(buf[begin:begin+len(data)], data)
		q.Complete(index)
		if bar != nil {
			bar.Incr()
		}
	}
}
