package app

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// execFFmpeg 測試時替換, 不真的呼叫 ffmpeg
var execFFmpeg = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
}

var codecs = map[string]string{
	"h264": "libx264",
	"h265": "libx265",
	"aac":  "aac",
}

func encoder(codec string) string {
	if e, ok := codecs[codec]; ok {
		return e
	}
	return codec
}

// HLSArgs ffmpeg arguments for one HLS rendition, playlist name is domain.ManifestName
func HLSArgs(inputPath, outputDir string, p domain.FormatProfile) []string {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", encoder(p.VideoCodec),
	}
	if p.MaxBitrate > 0 {
		args = append(args,
			"-maxrate", strconv.Itoa(p.MaxBitrate),
			"-bufsize", strconv.Itoa(2*p.MaxBitrate),
		)
	}
	args = append(args, "-c:a", encoder(p.AudioCodec))
	if p.AudioBitrate > 0 {
		args = append(args, "-b:a", strconv.Itoa(p.AudioBitrate))
	}
	if p.AudioSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.AudioSampleRate))
	}
	segment := p.SegmentSeconds
	if segment <= 0 {
		segment = 10
	}
	return append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%05d.ts"),
		filepath.Join(outputDir, domain.ManifestName),
	)
}

// TranscodeToHLS 將 inputPath 轉成 HLS 格式，輸出到 outputDir（會產生 index.m3u8 與 TS 分段）
func TranscodeToHLS(ctx context.Context, inputPath, outputDir string, p domain.FormatProfile) error {
	args := HLSArgs(inputPath, outputDir, p)
	logger.Log.Debug("執行 FFmpeg HLS", zap.Strings("args", args))
	output, err := execFFmpeg(ctx, args...)
	if err != nil {
		return fmt.Errorf("FFmpeg HLS 錯誤: %v, output: %s", err, string(output))
	}
	return nil
}

func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	default:
		return "application/octet-stream"
	}
}
