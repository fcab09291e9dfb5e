// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"errors"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolution-gaming/vmafscore/internal/video"
)

func Test_Path(t *testing.T) {
	type testCase struct {
		pathFunc func() (string, error)
		exeName  string
	}

	tests := map[string]testCase{
		"FfprobePath()": {
			pathFunc: FfprobePath,
			exeName:  "ffprobe",
		},
		"FfmpegPath()": {
			pathFunc: FfmpegPath,
			exeName:  "ffmpeg",
		},
	}

	run := func(t *testing.T, tc testCase) {
		// Create a fake binary and put it on PATH
		fakeBinDir := t.TempDir()
		wantPath := path.Join(fakeBinDir, tc.exeName)
		f, err := os.OpenFile(wantPath, os.O_CREATE, 0o755)
		require.NoError(t, err)
		f.Close()
		sysPath := os.Getenv("PATH")
		t.Setenv("PATH", fakeBinDir+":"+sysPath)
		t.Setenv(ffmpegEnv, "")
		t.Setenv(ffprobeEnv, "")

		gotPath, err := tc.pathFunc()
		assert.NoError(t, err)

		assert.Equal(t, wantPath, gotPath)
		assert.FileExists(t, gotPath)
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Path_Negative(t *testing.T) {
	type testCase struct {
		pathFunc func() (string, error)
	}

	tests := map[string]testCase{
		"FfprobePath()": {
			pathFunc: FfprobePath,
		},
		"FfmpegPath()": {
			pathFunc: FfmpegPath,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			// Wipe PATH so that no binary can be located.
			t.Setenv("PATH", "")
			t.Setenv(ffmpegEnv, "")
			t.Setenv(ffprobeEnv, "")

			s, err := tc.pathFunc()
			assert.Error(t, err, "Expected error since binary is not on PATH")
			assert.Equal(t, "", s, "Expected empty string as path")
		})
	}
}

func Test_FfprobeExtractMetadata_Negative(t *testing.T) {
	t.Run("Should fail for non-existent media file", func(t *testing.T) {
		_, err := FfprobeExtractMetadata("/non/existent/path/to/file")
		assert.Error(t, err)
	})
	t.Run("Should fail extracting metadata from non-media file", func(t *testing.T) {
		if _, err := FfprobePath(); err != nil {
			t.Skip("ffprobe not available")
		}
		// Try to extract metadata from non video file, just some binary like for instance
		// a test binary.
		nonMediaFile := os.Args[0]
		_, err := FfprobeExtractMetadata(nonMediaFile)
		assert.Error(t, err)
	})
}

func Test_FindLibvmafModel(t *testing.T) {
	modelDir := t.TempDir()
	wantPath := filepath.Join(modelDir, "vmaf_v0.6.1neg.json")
	require.NoError(t, os.WriteFile(wantPath, []byte("{}"), 0o644))

	t.Run("Model found in given directory", func(t *testing.T) {
		gotPath, err := FindLibvmafModel("vmaf_v0.6.1neg", t.TempDir(), modelDir)
		assert.NoError(t, err)
		assert.Equal(t, wantPath, gotPath)
	})

	t.Run("Model found via environment", func(t *testing.T) {
		t.Setenv(modelDirEnv, modelDir)
		gotPath, err := FindLibvmafModel("vmaf_v0.6.1neg")
		assert.NoError(t, err)
		assert.Equal(t, wantPath, gotPath)
	})

	t.Run("Unknown model version", func(t *testing.T) {
		t.Setenv(modelDirEnv, modelDir)
		_, err := FindLibvmafModel("vmaf_v9.9.9", modelDir)
		assert.Error(t, err)
	})
}

// fixScript writes an executable shell script and returns its path.
func fixScript(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func Test_FfprobeExtractMetadata_FakeProbe(t *testing.T) {
	media := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(media, nil, 0o644))

	tests := map[string]struct {
		output  string
		want    video.Metadata
		wantErr error
	}{
		"Stream duration from format": {
			output: `{"streams": [{"codec_name": "h264", "pix_fmt": "yuv420p", "width": 64, "height": 32,
				"r_frame_rate": "25/1", "nb_read_frames": "50"}], "format": {"duration": "2.000000"}}`,
			want: video.Metadata{
				CodecName: "h264", PixFmt: "yuv420p", FrameRate: "25/1",
				Width: 64, Height: 32, FrameCount: 50, Duration: 2,
			},
		},
		"No video stream": {
			output:  `{"streams": [], "format": {}}`,
			wantErr: ErrNoVideoStream,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(ffprobeEnv, fixScript(t, "ffprobe", "cat <<'EOF'\n"+tt.output+"\nEOF\n"))

			got, err := FfprobeExtractMetadata(media)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Probe failure", func(t *testing.T) {
		t.Setenv(ffprobeEnv, fixScript(t, "ffprobe", "exit 1\n"))
		_, err := FfprobeExtractMetadata(media)
		var exitErr *exec.ExitError
		assert.True(t, errors.As(err, &exitErr))
	})
}

func Test_FfmpegHasFilter(t *testing.T) {
	ffmpeg := fixScript(t, "ffmpeg", `case "$3" in
filter=libvmaf) echo "Filter libvmaf" ;;
*) echo "Unknown filter '${3#filter=}'." ;;
esac
`)

	assert.True(t, FfmpegHasFilter(ffmpeg, "libvmaf"))
	assert.False(t, FfmpegHasFilter(ffmpeg, "libvmaf_cuda"))

	broken := fixScript(t, "ffmpeg", "exit 1\n")
	assert.False(t, FfmpegHasFilter(broken, "libvmaf"))
	assert.False(t, FfmpegHasFilter(filepath.Join(t.TempDir(), "missing"), "libvmaf"))
}
