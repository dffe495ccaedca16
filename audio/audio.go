// Package audio holds recorded audio segments, the merge and MIME rules used
// before audio leaves the process, and the microphone capture port.
package audio

import (
	"bytes"
	"context"
)

// Segment is one contiguous chunk of recorded or uploaded audio.
type Segment struct {
	Data     []byte
	MIMEType string
}

// Len returns the segment size in bytes.
func (s Segment) Len() int { return len(s.Data) }

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	return Segment{Data: bytes.Clone(s.Data), MIMEType: s.MIMEType}
}

// Payload is a single audio buffer. Call Clean before handing it to a
// gateway.
type Payload struct {
	Data     []byte
	MIMEType string
}

// Empty reports whether the payload has no bytes.
func (p Payload) Empty() bool { return len(p.Data) == 0 }

// Clean returns p with its MIME type reduced by CleanMIMEType.
func (p Payload) Clean() Payload {
	p.MIMEType = CleanMIMEType(p.MIMEType)
	return p
}

// Merge concatenates segment bytes in order. The MIME type is the first
// segment's as recorded, or DefaultMIMEType when it has none. Equal inputs
// always produce byte-identical output.
func Merge(segments []Segment) Payload {
	if len(segments) == 0 {
		return Payload{MIMEType: DefaultMIMEType}
	}
	size := 0
	for _, s := range segments {
		size += len(s.Data)
	}
	buf := make([]byte, 0, size)
	for _, s := range segments {
		buf = append(buf, s.Data...)
	}
	mimeType := segments[0].MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return Payload{Data: buf, MIMEType: mimeType}
}

// PayloadOf wraps a single segment for a gateway.
func PayloadOf(s Segment) Payload {
	return Payload{Data: s.Data, MIMEType: CleanMIMEType(s.MIMEType)}
}

// Capture is the microphone. At most one capture is active per device; the
// caller serialises calls.
type Capture interface {
	// Start acquires the device and begins a new segment.
	Start(ctx context.Context) error
	// Pause ends the current segment and releases the device.
	Pause(ctx context.Context) (Segment, error)
	// Resume reacquires the device and begins a new segment.
	Resume(ctx context.Context) error
	// Stop ends the current segment and releases the device.
	Stop(ctx context.Context) (Segment, error)
}
