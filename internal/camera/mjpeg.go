package camera

import (
	"bufio"
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
)

// maxJPEGSize bounds a single frame in the stream. Anything larger means the
// splitter lost sync with the markers.
const maxJPEGSize = 4 << 20

// mjpegSplitter cuts a concatenated MJPEG byte stream (ffmpeg image2pipe
// output) into individual JPEG images using the SOI (FFD8) and EOI (FFD9)
// markers.
type mjpegSplitter struct {
	r       *bufio.Reader
	maxSize int
}

func newMJPEGSplitter(r io.Reader) *mjpegSplitter {
	return &mjpegSplitter{
		r:       bufio.NewReaderSize(r, 64*1024),
		maxSize: maxJPEGSize,
	}
}

// Next returns the next complete JPEG. Bytes before an SOI marker are
// discarded. io.EOF is returned when the stream ends between frames;
// io.ErrUnexpectedEOF when it ends inside one.
func (s *mjpegSplitter) Next() ([]byte, error) {
	// Find SOI marker (0xFFD8)
	prev := byte(0)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	frame := make([]byte, 2, 64*1024)
	frame[0], frame[1] = 0xFF, 0xD8

	// Read until EOI marker (0xFFD9)
	for {
		chunk, err := s.r.ReadSlice(0xD9)
		frame = append(frame, chunk...)
		if len(frame) > s.maxSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
		}
		switch err {
		case nil:
			if frame[len(frame)-2] == 0xFF {
				return frame, nil
			}
		case bufio.ErrBufferFull:
		case io.EOF:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// DecodeJPEG decodes one JPEG image into a frame in the given order. It is
// shared by the backends that receive MJPEG from the device.
func DecodeJPEG(data []byte, order ColorOrder) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return FrameFromImage(img, order), nil
}
