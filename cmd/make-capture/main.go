// Command make-capture writes a capture file of synthetic telemetry for
// replay through archived.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flowmesh/archiver/internal/message"
)

func main() {
	out := flag.String("out", "./data/capture.bin", "Capture file to append to")
	ids := flag.String("ids", "0x0801,0x0808", "Comma separated message ids")
	count := flag.Int("count", 100, "Messages per id")
	size := flag.Int("size", 64, "Bytes per message")
	flag.Parse()

	parsed, err := parseIDs(*ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid ids: %v\n", err)
		os.Exit(2)
	}

	n, err := generate(*out, parsed, *count, *size, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write capture: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d messages to %s\n", n, *out)
}

func parseIDs(s string) ([]message.MessageID, error) {
	var ids []message.MessageID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 0, 32)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, fmt.Errorf("message id 0 is reserved")
		}
		ids = append(ids, message.MessageID(v))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no message ids")
	}
	return ids, nil
}

// generate interleaves count messages per id, one per id every 250ms of
// mission time, and returns the number written
func generate(path string, ids []message.MessageID, count, size int, start time.Time) (int, error) {
	w, err := message.NewCaptureWriter(path)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * 250 * time.Millisecond)
		for _, id := range ids {
			data := make([]byte, size)
			for j := range data {
				data[j] = byte(i + j)
			}
			msg := &message.Message{
				ID:       id,
				Sequence: uint16(i),
				Time:     message.FromTime(at),
				Data:     data,
			}
			if err := w.Append(msg); err != nil {
				//nolint:errcheck // Append error takes precedence
				_ = w.Close()
				return written, err
			}
			written++
		}
	}

	return written, w.Close()
}
