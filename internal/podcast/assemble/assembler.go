// Package assemble joins per-sub-chunk WAV buffers into one file by
// splicing their data chunks. Pure container surgery: sample data is copied
// as-is, never re-encoded.
package assemble

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

const wavHeaderSize = 44

// Concat joins the segments in order into a single WAV buffer. Segments
// are staged through a temp directory that is removed on every exit path.
// Every segment must share the first segment's sample format; a splice of
// mismatched formats would play back garbled.
func Concat(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, &domain.AssemblyError{Err: fmt.Errorf("no audio segments to assemble")}
	}

	dir, err := os.MkdirTemp("", "podforge-assemble-*")
	if err != nil {
		return nil, &domain.AssemblyError{Err: fmt.Errorf("failed to create temp dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	paths := make([]string, len(segments))
	for i, segment := range segments {
		paths[i] = filepath.Join(dir, fmt.Sprintf("segment_%04d.wav", i))
		if err := os.WriteFile(paths[i], segment, 0o600); err != nil {
			return nil, &domain.AssemblyError{Err: fmt.Errorf("failed to stage segment %d: %w", i, err)}
		}
	}

	var header []byte
	var combined []byte
	var format *audio.Format

	for i, path := range paths {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, &domain.AssemblyError{Err: fmt.Errorf("failed to read staged segment %d: %w", i, err)}
		}

		segFormat, err := pcmFormat(buf)
		if err != nil {
			return nil, &domain.AssemblyError{Err: fmt.Errorf("segment %d: %w", i, err)}
		}

		data, err := extractDataChunk(buf)
		if err != nil {
			return nil, &domain.AssemblyError{Err: fmt.Errorf("segment %d: %w", i, err)}
		}

		if i == 0 {
			header = append([]byte(nil), buf[:wavHeaderSize]...)
			format = segFormat
		} else if segFormat.SampleRate != format.SampleRate || segFormat.NumChannels != format.NumChannels {
			return nil, &domain.AssemblyError{
				Err: fmt.Errorf("segment %d format %dHz/%dch does not match first segment %dHz/%dch",
					i, segFormat.SampleRate, segFormat.NumChannels, format.SampleRate, format.NumChannels),
			}
		}
		combined = append(combined, data...)
	}

	binary.LittleEndian.PutUint32(header[4:8], uint32(len(combined)+wavHeaderSize-8))
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(combined)))

	return append(header, combined...), nil
}

// pcmFormat reads the sample format out of a WAV buffer's header.
func pcmFormat(buf []byte) (*audio.Format, error) {
	decoder := wav.NewDecoder(bytes.NewReader(buf))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("unreadable wav header: %w", err)
	}

	return &audio.Format{
		NumChannels: int(decoder.NumChans),
		SampleRate:  int(decoder.SampleRate),
	}, nil
}

// extractDataChunk returns the sample bytes of a WAV buffer, located by
// scanning for the data chunk marker rather than trusting a fixed offset.
func extractDataChunk(buf []byte) ([]byte, error) {
	if len(buf) < wavHeaderSize {
		return nil, fmt.Errorf("wav buffer too short")
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE header")
	}

	for i := 12; i+8 <= len(buf); i++ {
		if string(buf[i:i+4]) == "data" {
			size := int(binary.LittleEndian.Uint32(buf[i+4 : i+8]))
			start := i + 8
			end := start + size
			if end > len(buf) {
				end = len(buf)
			}
			return buf[start:end], nil
		}
	}

	return nil, fmt.Errorf("no data chunk found")
}
