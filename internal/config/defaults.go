package config

const (
	defaultStagingDir           = "~/.local/share/granth/staging"
	defaultDeliveryDir          = "~/granth/delivered"
	defaultLogDir               = "~/.local/share/granth/logs"
	defaultTranslitCachePath    = "~/.local/share/granth/translit_cache.json"
	defaultCatalogTimeout       = 60
	defaultOCRBaseURL           = "https://api.sarvam.ai"
	defaultOCRLanguage          = "kn-IN"
	defaultOCROutputFormat      = "md"
	defaultOCRPollInterval      = 10
	defaultOCRPollTimeout       = 900
	defaultOCRRequestTimeout    = 120
	defaultTranslitBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	defaultTranslitModel        = "gemini-2.5-flash"
	defaultTranslitTargetScript = "roman"
	defaultTranslitTimeout      = 60
	defaultConverterBinary      = "pandoc"
	defaultConverterTimeout     = 300
	defaultRetryLimit           = 3
	defaultPauseBetween         = 2
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:    defaultStagingDir,
			DeliveryDir:   defaultDeliveryDir,
			LogDir:        defaultLogDir,
			TranslitCache: defaultTranslitCachePath,
		},
		Catalog: Catalog{
			RequestTimeout: defaultCatalogTimeout,
		},
		OCR: OCR{
			BaseURL:        defaultOCRBaseURL,
			Language:       defaultOCRLanguage,
			OutputFormat:   defaultOCROutputFormat,
			PollInterval:   defaultOCRPollInterval,
			PollTimeout:    defaultOCRPollTimeout,
			RequestTimeout: defaultOCRRequestTimeout,
		},
		Transliteration: Transliteration{
			BaseURL:        defaultTranslitBaseURL,
			Model:          defaultTranslitModel,
			TargetScript:   defaultTranslitTargetScript,
			TimeoutSeconds: defaultTranslitTimeout,
		},
		Converter: Converter{
			Binary:         defaultConverterBinary,
			TimeoutSeconds: defaultConverterTimeout,
		},
		Workflow: Workflow{
			RetryLimit:   defaultRetryLimit,
			PauseBetween: defaultPauseBetween,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
