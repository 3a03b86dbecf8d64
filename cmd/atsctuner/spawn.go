package main

import (
	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/config"
	"github.com/snapetech/atsctuner/internal/session"
)

// liveSpawner builds the demod/transcode argv pair for a live streaming
// session. The demod stage always runs; the transcode stage only runs when
// the selector's resolved engine is not "none", mirroring the teacher's own
// copy-unless-transcode-requested branch in buildFFmpegMPEGTSCodecArgs.
func liveSpawner(cfg *config.Config) session.Spawner {
	return func(ch channel.Channel, sel session.Selector) ([]string, []string) {
		demod := []string{cfg.DemodPath, "-f", ch.Frequency, "-s", ch.ServiceID}
		if sel.Engine == "none" {
			return demod, nil
		}
		return demod, transcodeArgs(cfg, sel)
	}
}

// epgSpawner builds the capture-only demod argv used by epgscan; there is
// no transcode stage, since epgscan only needs raw PSI/SI bytes.
func epgSpawner(cfg *config.Config) func(frequency string) []string {
	return func(frequency string) []string {
		return []string{cfg.DemodPath, "-f", frequency, "-s", "0"}
	}
}

// transcodeArgs builds the ffmpeg argv for sel's container/codec/engine
// selection (spec §4.3). copy stream-copies every stream; soft/qsv/nvenc/
// vaapi each pick the hardware init and codec name appropriate to that
// engine; mp4 gets fragmenting flags so the output stays streamable
// (fragmented-MP4); audio is always AAC 128kbps/2-channel outside copy mode.
func transcodeArgs(cfg *config.Config, sel session.Selector) []string {
	args := []string{
		cfg.FFmpegPath,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
	}

	switch sel.Engine {
	case "qsv":
		args = append(args, "-hwaccel", "qsv", "-hwaccel_output_format", "qsv")
	case "vaapi":
		args = append(args, "-hwaccel", "vaapi", "-vaapi_device", "/dev/dri/renderD128", "-hwaccel_output_format", "vaapi")
	case "nvenc":
		args = append(args, "-hwaccel", "cuda", "-hwaccel_output_format", "cuda")
	}

	args = append(args, "-fflags", "+discardcorrupt+genpts", "-i", "pipe:0", "-map", "0:v:0", "-map", "0:a?")

	if sel.Codec == "copy" {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, videoCodecArgs(sel)...)
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-ac", "2")
	}

	if sel.Container == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}

	args = append(args, "-f", muxerFor(sel.Container), "pipe:1")
	return args
}

// videoCodecArgs picks the encoder and pixel-format conversion appropriate
// to sel's engine/codec pair. Software encoding uses the ultrafast/
// zerolatency-class x264/x265/SVT-AV1 presets; hardware engines use their
// vendor-specific encoder name and a format filter to land the frame back
// in the surface the encoder expects.
func videoCodecArgs(sel session.Selector) []string {
	switch sel.Engine {
	case "qsv":
		switch sel.Codec {
		case "h265":
			return []string{"-vf", "format=nv12,hwupload=extra_hw_frames=64", "-c:v", "hevc_qsv"}
		default:
			return []string{"-vf", "format=nv12,hwupload=extra_hw_frames=64", "-c:v", "h264_qsv"}
		}
	case "vaapi":
		switch sel.Codec {
		case "h265":
			return []string{"-vf", "format=nv12,hwupload", "-c:v", "hevc_vaapi"}
		default:
			return []string{"-vf", "format=nv12,hwupload", "-c:v", "h264_vaapi"}
		}
	case "nvenc":
		switch sel.Codec {
		case "h265":
			return []string{"-c:v", "hevc_nvenc", "-preset", "p1", "-tune", "ll"}
		default:
			return []string{"-c:v", "h264_nvenc", "-preset", "p1", "-tune", "ll"}
		}
	default: // "soft"
		switch sel.Codec {
		case "h265":
			return []string{"-c:v", "libx265", "-preset", "ultrafast", "-tune", "zerolatency"}
		case "av1":
			return []string{"-c:v", "libsvtav1", "-preset", "12"}
		default:
			return []string{"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency"}
		}
	}
}

func muxerFor(container string) string {
	switch container {
	case "mkv":
		return "matroska"
	case "mp4":
		return "mp4"
	default:
		return "mpegts"
	}
}
