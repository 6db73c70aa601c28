// Package logger provides the structured logging facade used across postharvest.
//
// It wraps zerolog behind a small Logger interface so components can take
// a logger in their constructors and tests can substitute a TestLogger or
// NewNopLogger.
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "debug"})
//
//	log := logger.GetLogger().WithField("component", "collector")
//	log.InfoWithFields("Key finished", map[string]interface{}{
//	    "key":   "ctf",
//	    "count": 120,
//	})
//
// Console output is colourised and written to stderr. When a log file is
// configured, JSON lines are appended to it as well.
package logger
