// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/google/shlex"

	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// DefaultFfmpegVMAFTemplate reads the distorted stream from fd 3 and the
// reference from fd 4, libvmaf takes the distorted stream first.
var DefaultFfmpegVMAFTemplate = "-hide_banner -nostdin {{.GlobalArgs}} {{.HWInit}} " +
	"-f rawvideo -pix_fmt {{.PixFmt}} -s {{.Width}}x{{.Height}} -r {{.FPS}} -i pipe:3 " +
	"-f rawvideo -pix_fmt {{.PixFmt}} -s {{.Width}}x{{.Height}} -r {{.FPS}} -i pipe:4 " +
	"-lavfi '{{.Filter}}' -f null -"

// commandParams holds everything rendered into the ffmpeg command line.
type commandParams struct {
	GlobalArgs string
	HWInit     string
	PixFmt     string
	Width      int
	Height     int
	FPS        float64
	Filter     string
}

// filterParams describe the libvmaf filter instance.
type filterParams struct {
	logPath string
	threads int
	models  []*model
	// Feature specs as name=x[\\:opt=v].
	features []string
	cuda     *CUDAState
}

// filterGraph renders the libvmaf filter graph. Options are ':' separated,
// list entries '|' separated.
func filterGraph(p filterParams) string {
	opts := []string{
		"log_fmt=json",
		"log_path=" + p.logPath,
		fmt.Sprintf("n_threads=%d", p.threads),
		"n_subsample=1",
	}
	if len(p.models) > 0 {
		specs := make([]string, len(p.models))
		for i, m := range p.models {
			specs[i] = m.spec()
		}
		opts = append(opts, "model="+strings.Join(specs, "|"))
	}
	if len(p.features) > 0 {
		opts = append(opts, "feature="+strings.Join(p.features, "|"))
	}

	if p.cuda != nil {
		return "[0:v]hwupload_cuda[dist];[1:v]hwupload_cuda[ref];[dist][ref]libvmaf_cuda=" + strings.Join(opts, ":")
	}
	return "[0:v][1:v]libvmaf=" + strings.Join(opts, ":")
}

// rawPixFmt maps picture format and bit depth to an ffmpeg rawvideo pixel
// format.
func rawPixFmt(pf vmaf.PixelFormat, bitDepth int) (string, error) {
	var base string
	switch pf {
	case vmaf.PixelFormatYUV420P:
		base = "yuv420p"
	case vmaf.PixelFormatYUV422P:
		base = "yuv422p"
	case vmaf.PixelFormatYUV444P:
		base = "yuv444p"
	default:
		return "", fmt.Errorf("unsupported pixel format %s", pf)
	}
	switch bitDepth {
	case 8:
		return base, nil
	case 10, 12, 16:
		return fmt.Sprintf("%s%dle", base, bitDepth), nil
	}
	return "", fmt.Errorf("unsupported bit depth %d", bitDepth)
}

// ffmpegArgs renders tpl and splits it into arguments.
func ffmpegArgs(tpl string, p commandParams) ([]string, error) {
	var cmd strings.Builder
	t, err := template.New("ffmpeg").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.Execute(&cmd, p); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("prepare command: %w", err)
	}
	return args, nil
}

func hwInit(c *CUDAState) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("-init_hw_device cuda=cu:%s -filter_hw_device cu", c.DeviceName)
}
