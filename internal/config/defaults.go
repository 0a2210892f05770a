package config

const (
	envPrefix                    = "DUBBING_"
	defaultConfigPath            = "~/.config/dubbing/config.toml"
	defaultTempDir               = "~/.local/share/dubbing/tmp"
	defaultLogDir                = "~/.local/share/dubbing/logs"
	defaultArchivePath           = "~/.local/share/dubbing/history.db"
	defaultAPIBind               = "127.0.0.1:7611"
	defaultMaxConcurrentJobs     = 2
	defaultJobTimeoutSeconds     = 1800
	defaultRetryAttempts         = 3
	defaultSynthesisConcurrency  = 4
	defaultTargetLanguage        = "bn"
	defaultShutdownGraceSeconds  = 30
	defaultRetryBaseDelayMS      = 500
	defaultRetryMaxDelayMS       = 8000
	defaultRetryJitter           = 0.2
	defaultBreakerThreshold      = 5
	defaultBreakerCooldown       = 30
	defaultHealthMaxFailureRate  = 0.5
	defaultHealthMinSamples      = 4
	defaultRequestTimeoutSeconds = 120
	defaultFFmpegBinary          = "ffmpeg"
	defaultNtfyRequestTimeout    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Stage weight keys accepted in pipeline.stage_weights.
const (
	WeightExtract    = "extract"
	WeightTranscribe = "transcribe"
	WeightTranslate  = "translate"
	WeightSynthesize = "synthesize"
	WeightAssemble   = "assemble"
	WeightCombine    = "combine"
	WeightQuality    = "quality"
)

var stageWeightKeys = []string{
	WeightExtract,
	WeightTranscribe,
	WeightTranslate,
	WeightSynthesize,
	WeightAssemble,
	WeightCombine,
	WeightQuality,
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	weights := make(map[string]int, len(stageWeightKeys))
	for _, key := range stageWeightKeys {
		weights[key] = 1
	}
	return Config{
		Paths: Paths{
			TempDir:     defaultTempDir,
			LogDir:      defaultLogDir,
			ArchivePath: defaultArchivePath,
			APIBind:     defaultAPIBind,
		},
		Pipeline: Pipeline{
			MaxConcurrentJobs:       defaultMaxConcurrentJobs,
			JobTimeoutSeconds:       defaultJobTimeoutSeconds,
			RetryAttempts:           defaultRetryAttempts,
			EnableQualityValidation: true,
			SynthesisConcurrency:    defaultSynthesisConcurrency,
			TargetLanguage:          defaultTargetLanguage,
			ShutdownGraceSeconds:    defaultShutdownGraceSeconds,
			StageWeights:            weights,
		},
		Retry: Retry{
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Jitter:      defaultRetryJitter,
		},
		Breaker: Breaker{
			FailureThreshold: defaultBreakerThreshold,
			CooldownSeconds:  defaultBreakerCooldown,
		},
		Health: Health{
			MaxFailureRate: defaultHealthMaxFailureRate,
			MinSamples:     defaultHealthMinSamples,
		},
		Services: Services{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			FFmpegBinary:          defaultFFmpegBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			OnCompletion:   true,
			OnFailure:      true,
			OnBreaker:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
