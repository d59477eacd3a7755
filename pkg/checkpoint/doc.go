// Package checkpoint persists harvesting progress so an interrupted run can
// be resumed.
//
// A checkpoint records, per content identifier, the rpids already written
// to the dataset, the downloaded count, the last page and the run id. On
// resume the seen rpids seed the harvester's dedup set; pagination itself
// restarts from the first page because cursors do not survive between
// sessions.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: ~/.local/share/bicodown/checkpoints/
//   - macOS: ~/Library/Application Support/bicodown/checkpoints/
//   - Windows: %APPDATA%/bicodown/checkpoints/
package checkpoint
