package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveQualityLosslessOrigin(t *testing.T) {
	flac := &AudioInfo{Codec: "flac", Bitrate: 0, Label: "FLAC (lossless)"}

	bitrate, label := EffectiveQuality(flac, nil)
	assert.Equal(t, 0, bitrate)
	assert.Equal(t, "FLAC (lossless)", label)
}

func TestEffectiveQualityTranscodeReportsSourceBitrate(t *testing.T) {
	// A 128kbps MP3 converted to FLAC is still 128kbps audio
	flac := &AudioInfo{Codec: "flac", Bitrate: 0, Label: "FLAC (lossless)"}
	src := &AudioInfo{Codec: "mp3", Bitrate: 128, Label: "MP3 128kbps"}

	bitrate, label := EffectiveQuality(flac, src)
	assert.Equal(t, 128, bitrate)
	assert.Equal(t, "FLAC (lossless) (from MP3 128kbps)", label)
}

func TestEffectiveQualityLossyKeepsOwnBitrate(t *testing.T) {
	opus := &AudioInfo{Codec: "opus", Bitrate: 160, Label: "OPUS 160kbps"}
	src := &AudioInfo{Codec: "opus", Bitrate: 160, Label: "OPUS 160kbps"}

	bitrate, _ := EffectiveQuality(opus, src)
	assert.Equal(t, 160, bitrate)
}

func TestMeetsQualityFloor(t *testing.T) {
	// Lossless always passes
	assert.True(t, MeetsQualityFloor(0, 256))
	// Floor disabled
	assert.True(t, MeetsQualityFloor(96, 0))
	// Above and below the bar
	assert.True(t, MeetsQualityFloor(320, 256))
	assert.False(t, MeetsQualityFloor(128, 256))
}
