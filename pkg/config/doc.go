// Package config loads postharvest settings from defaults, a YAML file,
// .env files, environment variables and command line flags.
//
// Precedence, highest first: flags, environment (including values loaded
// from .env), config file, defaults.
//
//	cfg, err := config.Load("", map[string]interface{}{
//	    "session": "ctf_dataset",
//	    "format":  "jsonl",
//	})
//
// The environment names mirror the batch script the tool grew out of:
// POSTHARVEST_SESSION_NAME, POSTHARVEST_MAX_PER_KEYWORD,
// POSTHARVEST_PAUSE_BETWEEN_KEYS (seconds or a Go duration),
// POSTHARVEST_CACHE_TYPE, POSTHARVEST_SAVE_INTERVAL and
// POSTHARVEST_CACHE_DIR. Bluesky credentials come from BLUESKY_HANDLE
// and BLUESKY_APP_PASSWORD.
package config
