package config

const (
	defaultDataDir    = "~/.local/share/timelens"
	defaultMediaDir   = "~/.local/share/timelens/media"
	defaultLogDir     = "~/.local/share/timelens/logs"
	defaultSocketPath = "~/.local/share/timelens/timelensd.sock"

	defaultFrameIntervalSeconds = 1
	defaultSegmentSeconds       = 60

	defaultForegroundSampleSeconds = 5
	defaultForegroundHistoryMin    = 20

	defaultAnalysisPollSeconds  = 60
	defaultSettleDelaySeconds   = 10
	defaultMaxBatchMinutes      = 15
	defaultMaxBatchSegments     = 20
	defaultKeyframesPerSegment  = 8
	defaultMaxFrameWidth        = 1280
	defaultMaxFrameHeight       = 720
	defaultJPEGQuality          = 70
	defaultMergeGapSeconds      = 90
	defaultAnalysisRetryLimit   = 3
	defaultBatchTimeoutSeconds  = 300
	defaultErrorRetrySeconds    = 10
	defaultRecentCardsInContext = 5

	defaultVisionBaseURL        = "https://api.openai.com/v1"
	defaultVisionModel          = "gpt-4o-mini"
	defaultVisionTimeoutSeconds = 120

	defaultDigestCatchUpHours = 2
	defaultDigestRetryLimit   = 3
	defaultDigestPollSeconds  = 60
	defaultNotifyTimeoutSecs  = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			MediaDir:   defaultMediaDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Capture: Capture{
			FrameIntervalSeconds: defaultFrameIntervalSeconds,
			SegmentSeconds:       defaultSegmentSeconds,
			StartOnLaunch:        true,
		},
		Foreground: Foreground{
			SampleIntervalSeconds: defaultForegroundSampleSeconds,
			HistoryMinutes:        defaultForegroundHistoryMin,
		},
		Analysis: Analysis{
			PollIntervalSeconds:  defaultAnalysisPollSeconds,
			SettleDelaySeconds:   defaultSettleDelaySeconds,
			MaxBatchMinutes:      defaultMaxBatchMinutes,
			MaxBatchSegments:     defaultMaxBatchSegments,
			KeyframesPerSegment:  defaultKeyframesPerSegment,
			MaxFrameWidth:        defaultMaxFrameWidth,
			MaxFrameHeight:       defaultMaxFrameHeight,
			JPEGQuality:          defaultJPEGQuality,
			MergeGapSeconds:      defaultMergeGapSeconds,
			RetryLimit:           defaultAnalysisRetryLimit,
			BatchTimeoutSeconds:  defaultBatchTimeoutSeconds,
			ErrorRetrySeconds:    defaultErrorRetrySeconds,
			RecentCardsInContext: defaultRecentCardsInContext,
		},
		Vision: Vision{
			BaseURL:        defaultVisionBaseURL,
			Model:          defaultVisionModel,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
		},
		Digest: Digest{
			SendTimes:           []string{"12:00", "22:00"},
			CatchUpWindowHours:  defaultDigestCatchUpHours,
			RetryLimit:          defaultDigestRetryLimit,
			PollIntervalSeconds: defaultDigestPollSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
