// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video metadata related constructs.

package video

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName  string  `json:"codec_name,omitempty"`
	PixFmt     string  `json:"pix_fmt,omitempty"`
	FrameRate  string  `json:"r_frame_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty,string"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty,string"`
	FrameCount int     `json:"nb_read_frames,omitempty,string"`
}

// FPS converts FrameRate to frames per second.
func (m Metadata) FPS() (float64, error) {
	return ParseFraction(m.FrameRate)
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(videoFile string) (Metadata, error)
}

// ExtractorFunc adapts a plain function to MetadataExtractor.
type ExtractorFunc func(videoFile string) (Metadata, error)

func (f ExtractorFunc) ExtractMetadata(videoFile string) (Metadata, error) {
	return f(videoFile)
}

var ErrInvalidFraction = errors.New("invalid fraction")

// ParseFraction parses ffprobe style rationals like "30000/1001" or plain
// numbers.
func ParseFraction(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFraction, s)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFraction, s)
	}
	return n / d, nil
}
