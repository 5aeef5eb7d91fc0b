// Package logging provides structured logging with per-module log levels.
//
// Every package asks for its own logger once:
//
//	logger := logging.GetLogger("camera").With("camera", name)
//	logger.Info("State changed", "from", "idle", "to", "streaming")
//
// Output goes to stdout (text or JSON) and to the systemd journal when journald is
// reachable. Levels are held in slog.LevelVar values, so SetLevels can change them
// while the service runs (the config watcher does this when the [logging] table of
// the config file changes).
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	camera = "debug"
//	nats = "warn"
//
// Journal fields are upper-cased attribute keys, so logs can be filtered with
//
//	journalctl -t camrelay MODULE=camera CAMERA=front_door
package logging
