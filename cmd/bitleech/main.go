// Command bitleech is the dispatcher of spec.md §6: nine verbs, exit code 0
// on success, nonzero on any error, diagnostics to stderr, structured
// output to stdout. Grounded on the teacher's cmd/mybittorrent/main.go for
// the -debug flag and switch-on-verb shape, extended with the five verbs
// (download_piece, download, magnet_parse, magnet_handshake, magnet_info)
// the distilled client adds.
package main

import (
	"fmt"
	"os"
	"strconv"

	"bitleech/internal/clog"
	"bitleech/internal/commands"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	debugLevel, outPath, args := parseArgs(os.Args[1:])

	logger := clog.New(debugLevel)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: bitleech [-debug level] <command> [-o path] [args...]")
		os.Exit(1)
	}

	if err := dispatch(args[0], args[1:], outPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseArgs scans raw for -debug/-o flags at any position — "-o" in
// particular must work after the command name, since every download_piece/
// download invocation in spec.md's verb table puts it there — and returns
// the remaining positional arguments untouched.
func parseArgs(raw []string) (debugLevel, outPath string, positional []string) {
	debugLevel = "warn"
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case "-debug", "--debug":
			if i+1 < len(raw) {
				i++
				debugLevel = raw[i]
			}
		case "-o", "--o":
			if i+1 < len(raw) {
				i++
				outPath = raw[i]
			}
		default:
			positional = append(positional, raw[i])
		}
	}
	return debugLevel, outPath, positional
}

func dispatch(command string, args []string, outPath string) error {
	switch command {
	case "decode":
		if len(args) != 1 {
			return usageErr("decode <bencoded-string>")
		}
		return commands.Decode([]byte(args[0]))

	case "info":
		if len(args) != 1 {
			return usageErr("info <torrent-file>")
		}
		return commands.Info(args[0])

	case "peers":
		if len(args) != 1 {
			return usageErr("peers <torrent-file>")
		}
		return commands.Peers(args[0])

	case "handshake":
		if len(args) != 2 {
			return usageErr("handshake <torrent-file> <ip:port>")
		}
		return commands.Handshake(args[0], args[1])

	case "download_piece":
		if len(args) != 2 || outPath == "" {
			return usageErr("download_piece -o <path> <torrent-file> <piece-index>")
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return usageErr("piece index must be an integer")
		}
		return commands.DownloadPiece(outPath, args[0], index)

	case "download":
		if len(args) != 1 || outPath == "" {
			return usageErr("download -o <path> <torrent-file>")
		}
		return commands.Download(outPath, args[0])

	case "magnet_parse":
		if len(args) != 1 {
			return usageErr("magnet_parse <magnet-link>")
		}
		return commands.MagnetParse(args[0])

	case "magnet_handshake":
		if len(args) != 1 {
			return usageErr("magnet_handshake <magnet-link>")
		}
		return commands.MagnetHandshake(args[0])

	case "magnet_info":
		if len(args) != 1 {
			return usageErr("magnet_info <magnet-link>")
		}
		return commands.MagnetInfo(args[0])

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func usageErr(usage string) error {
	return fmt.Errorf("usage: bitleech %s", usage)
}
