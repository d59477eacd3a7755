// Package logger is the structured logging layer of bicodown.
//
// It wraps zerolog behind a small Logger interface so the harvester, the
// HTTP client and the CLI can be handed a logger explicitly, and tests can
// swap in NewNopLogger or NewTestLogger.
//
// Console output goes to stderr in a compact colored format. When a log
// file is configured, lines are also written to a size-rotated file that
// keeps at most max_log_files old copies.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("identifier", "BV1xx411c7mD")
//	log.Info("Harvest started")
package logger
