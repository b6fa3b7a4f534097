// Package heading ingests device-heading telemetry: a TCP byte stream of
// back-to-back JSON objects with no length framing or delimiter. Record
// boundaries are wherever a complete JSON value parses.
package heading

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
)

// Record is one decoded heading report. Immutable once constructed; a newer
// record supersedes it, they are never merged.
type Record struct {
	// Heading is the reported true heading in degrees. Values outside
	// [0,360) are accepted; the trigonometric steering mapping is periodic.
	Heading float64

	// LoggedAt is an opaque timestamp/label supplied by the sender, if any.
	LoggedAt string

	// Raw is the JSON object the record was decoded from, kept for logging.
	Raw []byte
}

// wireRecord is the on-the-wire shape. Only locationTrueHeading is required;
// a missing field decodes as 0.0, matching the sender's earliest firmware.
type wireRecord struct {
	LocationTrueHeading float64 `json:"locationTrueHeading"`
	LoggedAt            string  `json:"loggedAt"`
}

// Framer accumulates stream bytes and yields complete records. It owns its
// buffer exclusively and never blocks. Not safe for concurrent use; each
// connection gets its own Framer.
type Framer struct {
	buf       []byte
	malformed int
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends a chunk of stream bytes and returns all complete records now
// available, in order. A chunk may complete zero, one, or many records; an
// incomplete suffix is retained for the next call. Feeding an empty chunk is
// a caller bug (zero bytes from a socket means the stream ended) but is
// harmless here.
//
// On a malformed prefix the framer logs, stops draining, and waits for more
// bytes rather than spinning; the buffer does not advance past the fragment.
func (f *Framer) Feed(p []byte) []Record {
	f.buf = append(f.buf, p...)

	var records []Record
	for {
		f.buf = bytes.TrimLeft(f.buf, " \t\r\n")
		if len(f.buf) == 0 {
			return records
		}

		dec := json.NewDecoder(bytes.NewReader(f.buf))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Incomplete value; the rest is in a future chunk.
				return records
			}
			f.malformed++
			log.Printf("heading: framing error: %v (%d bytes buffered)", err, len(f.buf))
			return records
		}

		f.buf = f.buf[dec.InputOffset():]

		var w wireRecord
		if err := json.Unmarshal(raw, &w); err != nil {
			// A complete JSON value of the wrong shape. Skip it; the
			// stream itself is still framed correctly.
			f.malformed++
			log.Printf("heading: undecodable record %q: %v", truncate(raw, 120), err)
			continue
		}

		records = append(records, Record{
			Heading:  w.LocationTrueHeading,
			LoggedAt: w.LoggedAt,
			Raw:      append([]byte(nil), raw...),
		})
	}
}

// Malformed returns the number of framing/decoding failures seen so far.
func (f *Framer) Malformed() int {
	return f.malformed
}

// Pending returns the number of buffered bytes awaiting completion.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func truncate(p []byte, n int) []byte {
	if len(p) <= n {
		return p
	}
	return p[:n]
}
