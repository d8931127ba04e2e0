package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	ffmpeg_go "github.com/u2takey/ffmpeg-go"

	"github.com/vidfetch/vidfetch/internal/common/util"
	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// EnsureTooling downloads yt-dlp if it is not already present. Failure is
// not fatal to the server; jobs will fail individually instead.
func EnsureTooling(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, nil)
	return errors.Wrap(err, "installing yt-dlp")
}

// YtdlpFetcher fetches media by driving the yt-dlp binary. Download mode
// produces an mp4 in the media directory; stream mode remuxes the source
// into an HLS playlist plus segments for immediate playback.
type YtdlpFetcher struct {
	mediaDir         string
	timeout          time.Duration
	progressInterval time.Duration
}

func NewYtdlpFetcher(config configuration.FetcherConfig, mediaDir string) *YtdlpFetcher {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	progressInterval := config.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = time.Second
	}
	return &YtdlpFetcher{
		mediaDir:         mediaDir,
		timeout:          timeout,
		progressInterval: progressInterval,
	}
}

func (f *YtdlpFetcher) Fetch(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if request.Mode == domain.ModeStream {
		return f.fetchStream(ctx, request, report)
	}
	return f.fetchDownload(ctx, request, report)
}

func (f *YtdlpFetcher) fetchDownload(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error) {
	started := time.Now()
	outputTemplate := filepath.Join(f.mediaDir, "%(title)s.%(ext)s")

	dl := ytdlp.New().
		FormatSort("res,ext:mp4:m4a").
		MergeOutputFormat("mp4").
		NoPlaylist().
		Output(outputTemplate).
		Progress().
		Newline().
		SponsorblockMark("all").
		SponsorblockRemove("sponsor")

	var lastForward time.Time
	var lastPercent float64
	dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		percent := update.Percent()
		// The upstream reporter is chatty; forward when enough time or
		// percent has passed, and always on a status change.
		if time.Since(lastForward) < f.progressInterval &&
			percent-lastPercent < 1.0 &&
			update.Status == ytdlp.ProgressStatusDownloading {
			return
		}
		lastForward = time.Now()
		lastPercent = percent
		report(percent, downloadProgressMessage(update))
	})

	if _, err := dl.Run(ctx, request.URL); err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		return Artifact{}, errors.Wrap(err, "yt-dlp")
	}
	log.WithField("url", request.URL).WithField("took", time.Since(started).Round(time.Second)).
		Info("yt-dlp download finished")

	name, err := f.newestArtifact()
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{File: name}, nil
}

func (f *YtdlpFetcher) fetchStream(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error) {
	report(0, "Extracting media source...")

	title, videoURL, audioURL, err := f.extractStreamSource(ctx, request.URL)
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		return Artifact{}, err
	}
	report(10, fmt.Sprintf("Preparing HLS stream for %q...", title))

	streamID := util.NewULID()
	segmentDir := filepath.Join(f.mediaDir, "segments", streamID)
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return Artifact{}, errors.Wrap(err, "creating segment directory")
	}
	name := sanitizeTitle(title)
	if name == "" {
		name = streamID
	}
	playlist := filepath.Join(f.mediaDir, name+".m3u8")

	report(15, "Converting to HLS...")
	stderr := &bytes.Buffer{}
	progressReader, progressWriter := io.Pipe()
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		forwardRemuxProgress(ctx, progressReader, f.progressInterval, report)
	}()

	// OutputContext ties the ffmpeg process to ctx, so cancelling the job
	// kills the conversion instead of waiting it out.
	run := ffmpeg_go.OutputContext(ctx,
		[]*ffmpeg_go.Stream{
			ffmpeg_go.Input(videoURL).Video(),
			ffmpeg_go.Input(audioURL).Audio(),
		},
		playlist,
		ffmpeg_go.KwArgs{
			"c:v":                  "copy",
			"c:a":                  "copy",
			"f":                    "hls",
			"hls_time":             "6",
			"hls_list_size":        "0",
			"hls_segment_filename": filepath.Join(segmentDir, "segment_%03d.ts"),
			"hls_base_url":         fmt.Sprintf("segments/%s/", streamID),
			"start_number":         "0",
			"hls_flags":            "independent_segments",
		}).
		WithErrorOutput(io.MultiWriter(stderr, progressWriter)).
		OverWriteOutput()

	err = run.Run(ffmpeg_go.SeparateProcessGroup())
	progressWriter.Close()
	<-progressDone
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		return Artifact{}, errors.Wrapf(err, "ffmpeg HLS conversion: %s", lastLine(stderr.String()))
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	return Artifact{File: filepath.Base(playlist)}, nil
}

// extractStreamSource resolves the title and directly playable video and
// audio URLs. Some sources intermittently refuse the requested format;
// those attempts are retried a few times before giving up.
func (f *YtdlpFetcher) extractStreamSource(ctx context.Context, url string) (title, videoURL, audioURL string, err error) {
	video := ytdlp.New().
		GetTitle().
		GetURL().
		Format("bestvideo[ext=mp4]").
		FormatSort("vcodec:h264").
		NoPlaylist()

	var output *ytdlp.Result
	err = retry.Do(
		func() error {
			var runErr error
			output, runErr = video.Run(ctx, url)
			return runErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return strings.Contains(err.Error(), "Requested format is not available")
		}),
	)
	if err != nil {
		return "", "", "", errors.Wrap(err, "yt-dlp video source extraction")
	}

	lines := strings.Split(strings.TrimSpace(output.Stdout), "\n")
	switch len(lines) {
	case 1:
		videoURL = strings.TrimSpace(lines[0])
	case 2:
		title = strings.TrimSpace(lines[0])
		videoURL = strings.TrimSpace(lines[1])
	default:
		return "", "", "", errors.Errorf("unexpected yt-dlp output: %d lines", len(lines))
	}

	audio := ytdlp.New().
		GetURL().
		Format("bestaudio[ext=m4a]").
		NoPlaylist()
	audioOutput, err := audio.Run(ctx, url)
	if err != nil {
		return "", "", "", errors.Wrap(err, "yt-dlp audio source extraction")
	}
	audioURL = strings.TrimSpace(audioOutput.Stdout)

	return title, videoURL, audioURL, nil
}

var (
	remuxTimeRegex  = regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}\.\d{2})`)
	remuxSpeedRegex = regexp.MustCompile(`speed=\s*(\d+\.?\d*)x`)
)

// forwardRemuxProgress turns ffmpeg's stderr stats into progress reports.
// ffmpeg reports elapsed media time rather than a fraction, so only the
// message advances; the percent is left where the caller put it.
func forwardRemuxProgress(ctx context.Context, reader io.Reader, interval time.Duration, report ProgressFunc) {
	scanner := bufio.NewScanner(reader)
	scanner.Split(scanStatsLines)
	lastForward := time.Now()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if time.Since(lastForward) < interval {
			continue
		}
		line := scanner.Text()
		timeMatch := remuxTimeRegex.FindStringSubmatch(line)
		if len(timeMatch) == 0 {
			continue
		}
		message := fmt.Sprintf("Converting: %s", timeMatch[1])
		if speedMatch := remuxSpeedRegex.FindStringSubmatch(line); len(speedMatch) > 1 {
			message += fmt.Sprintf(" @ %sx", speedMatch[1])
		}
		report(15, message)
		lastForward = time.Now()
	}
}

// scanStatsLines splits on carriage returns as well as newlines; ffmpeg
// separates stats updates with bare \r when stderr is a pipe.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// newestArtifact returns the most recently modified media file. yt-dlp
// picks the final file name from the video title, so the fresh artifact is
// found by mtime rather than by name.
func (f *YtdlpFetcher) newestArtifact() (string, error) {
	entries, err := os.ReadDir(f.mediaDir)
	if err != nil {
		return "", errors.Wrap(err, "reading media directory")
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !IsMediaFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newest = entry.Name()
		}
	}
	if newest == "" {
		return "", errors.New("download finished but no artifact found")
	}
	return newest, nil
}

// IsMediaFile reports whether name looks like an artifact this system
// produces.
func IsMediaFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".m3u8")
}

func downloadProgressMessage(update ytdlp.ProgressUpdate) string {
	switch update.Status {
	case ytdlp.ProgressStatusStarting:
		return "Starting download..."
	case ytdlp.ProgressStatusFinished:
		return "Download finished, post-processing..."
	case ytdlp.ProgressStatusError:
		return "Download error"
	case ytdlp.ProgressStatusDownloading:
		speed := ""
		if !update.Started.IsZero() && update.DownloadedBytes > 0 {
			elapsed := time.Since(update.Started).Seconds()
			if elapsed > 0 {
				speed = fmt.Sprintf(" @ %.2f MiB/s", float64(update.DownloadedBytes)/elapsed/1024/1024)
			}
		}
		eta := ""
		if update.ETA() > 0 {
			eta = fmt.Sprintf(" ETA %s", update.ETA().Round(time.Second))
		}
		size := ""
		if update.TotalBytes > 0 {
			size = fmt.Sprintf(" (%.2f/%.2f MiB)",
				float64(update.DownloadedBytes)/1024/1024,
				float64(update.TotalBytes)/1024/1024)
		} else if update.DownloadedBytes > 0 {
			size = fmt.Sprintf(" (%.2f MiB)", float64(update.DownloadedBytes)/1024/1024)
		}
		fragments := ""
		if update.FragmentCount > 0 {
			fragments = fmt.Sprintf(" [fragment %d/%d]", update.FragmentIndex, update.FragmentCount)
		}
		return fmt.Sprintf("Downloading: %s%s%s%s%s", update.PercentString(), size, speed, eta, fragments)
	default:
		return fmt.Sprintf("Status: %s @ %s", update.Status, update.PercentString())
	}
}

// sanitizeTitle replaces filesystem-reserved characters with underscores.
// The title is otherwise kept as-is, accents and all.
func sanitizeTitle(title string) string {
	for _, reserved := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		title = strings.ReplaceAll(title, reserved, "_")
	}
	return strings.TrimSpace(title)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
