// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Environment variables overriding tool and model locations.
	ffprobeEnv  = "FFPROBE_PATH"
	ffmpegEnv   = "FFMPEG_PATH"
	modelDirEnv = "VMAF_MODEL_DIR"
	// A list of known locations where various distributions of ffmpeg may put
	// libvmaf models.
	libvmafModelLocations = []string{
		"/usr/local/share/model",
		"/usr/share/model",
		"/opt/ffmpeg-static/model",
	}
)

var ErrNoVideoStream = errors.New("no video stream")

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, ffmpegEnv)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, ffprobeEnv)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}

// FfprobeExtractMetadata will query video file metadata via ffprobe. Frames
// are counted by decoding, so it takes a while for long files.
func FfprobeExtractMetadata(videoFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); os.IsNotExist(err) {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-threads", "0",
		"-select_streams", "v:0",
		"-count_frames",
		"-of", "json",
		"-show_format",
		"-show_streams",
		videoFile,
	}
	ffprobePath, err := FfprobePath()
	if err != nil {
		return vmeta, err
	}
	cmd := exec.Command(ffprobePath, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() exec error: %w", err)
	}

	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []video.Metadata
		Format  video.Metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() %s: %w", videoFile, ErrNoVideoStream)
	}

	vmeta = meta.Streams[0]
	// For mkv container Streams does not contain duration, so we have to look into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}

// FfmpegHasFilter reports whether ffmpeg at ffmpegPath was built with
// filter, e.g. "libvmaf" or "libvmaf_cuda".
func FfmpegHasFilter(ffmpegPath, filter string) bool {
	out, err := exec.Command(ffmpegPath, "-hide_banner", "-h", "filter="+filter).CombinedOutput() //#nosec G204
	if err != nil {
		return false
	}
	return !bytes.Contains(out, []byte("Unknown filter"))
}

// FindLibvmafModel will return path to JSON file of libvmaf model version.
// Directories in dirs are searched first, then $VMAF_MODEL_DIR and the
// locations ffmpeg distributions usually install models to.
//
// XXX: Although not specifically related to ffmpeg family tools, but for time
// being keep it here.
func FindLibvmafModel(version string, dirs ...string) (string, error) {
	model := version + ".json"
	locations := append([]string(nil), dirs...)
	if d := os.Getenv(modelDirEnv); d != "" {
		locations = append(locations, d)
	}
	locations = append(locations, libvmafModelLocations...)

	for _, l := range locations {
		if l == "" {
			continue
		}
		p := filepath.Join(l, model)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("libvmaf model file %s not found in any of %s", model, locations)
}
