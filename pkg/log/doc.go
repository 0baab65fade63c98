/*
Package log provides structured logging for the storage and consensus core
using zerolog.

Init configures the global Logger once at process startup; every other
package pulls child loggers from it via WithComponent/WithValidator/
WithAddress/WithHeight rather than constructing their own zerolog.Logger, so
a single log.Init(cfg) controls output format and level everywhere.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("consensus").With().Int("validator_id", 2).Logger()
	logger.Info().Uint64("height", 42).Msg("committed block")

No package in this module calls the standard library's log package or
fmt.Println for operational output. Invariant-violation panics carry a
string message and are not logged before they propagate.
*/
package log
