package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var losslessCodecs = map[string]bool{
	"flac": true,
	"alac": true,
	"wav":  true,
	"pcm":  true,
}

// AudioInfo describes a probed file. Bitrate is 0 for genuinely lossless
// audio; a FLAC converted from a lossy source carries the SOURCE bitrate
// so the quality floor can reject the transcode it actually is.
type AudioInfo struct {
	Codec    string
	Bitrate  int // kbps
	Duration int // seconds
	Label    string
}

// Converter owns the ffmpeg/ffprobe subprocess work.
type Converter struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewConverter(timeout time.Duration, logger *zap.Logger) *Converter {
	return &Converter{timeout: timeout, logger: logger}
}

// Probe inspects the first audio stream with ffprobe.
func (c *Converter) Probe(ctx context.Context, filePath string) (*AudioInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,bit_rate,sample_rate,duration",
		"-of", "json",
		filePath)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
			BitRate   string `json:"bit_rate"`
			Duration  string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio stream in %s", filePath)
	}

	stream := probe.Streams[0]
	info := &AudioInfo{Codec: stream.CodecName}

	if br, err := strconv.Atoi(stream.BitRate); err == nil {
		info.Bitrate = br / 1000
	}
	if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
		info.Duration = int(d)
	}

	codec := strings.ToLower(info.Codec)
	if losslessCodecs[codec] || strings.HasPrefix(codec, "pcm_") {
		info.Bitrate = 0
		info.Label = strings.ToUpper(info.Codec) + " (lossless)"
	} else {
		info.Label = fmt.Sprintf("%s %dkbps", strings.ToUpper(info.Codec), info.Bitrate)
	}

	return info, nil
}

// Convert transcodes srcPath into the target format next to it and returns
// the new path. format is "flac" or "opus".
func (c *Converter) Convert(ctx context.Context, srcPath, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	targetExt := ".flac"
	codec := "flac"
	if format == "opus" {
		targetExt = ".opus"
		codec = "libopus"
	}

	dstPath := strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + targetExt
	if dstPath == srcPath {
		return srcPath, nil
	}

	args := []string{"-y", "-i", srcPath, "-c:a", codec}
	if codec == "libopus" {
		args = append(args, "-b:a", "320k")
	}
	args = append(args, dstPath)

	c.logger.Info("converting audio",
		zap.String("src", srcPath),
		zap.String("format", format))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("conversion timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return "", fmt.Errorf("ffmpeg conversion failed: %w: %s", err, msg)
	}

	return dstPath, nil
}

// EffectiveQuality reports the bitrate the quality floor should judge and
// a human label. sourceInfo describes the pre-conversion file when the
// artifact was transcoded; converting lossy audio to FLAC does not make it
// lossless, so the source bitrate wins.
func EffectiveQuality(converted *AudioInfo, sourceInfo *AudioInfo) (int, string) {
	if converted.Bitrate == 0 && sourceInfo != nil && sourceInfo.Bitrate > 0 {
		label := fmt.Sprintf("%s (from %s)", converted.Label, sourceInfo.Label)
		return sourceInfo.Bitrate, label
	}
	return converted.Bitrate, converted.Label
}

// MeetsQualityFloor applies the configured minimum bitrate. Lossless audio
// (effective bitrate 0) always passes; a floor of 0 disables the gate.
func MeetsQualityFloor(effectiveBitrate, minBitrate int) bool {
	if minBitrate <= 0 || effectiveBitrate <= 0 {
		return true
	}
	return effectiveBitrate >= minBitrate
}
