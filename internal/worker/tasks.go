package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names routed through the asynq mux.
const (
	TypeDownloadTrack = "download:track"
	TypePlaylistCheck = "playlist:check"
	TypeBulkImport    = "bulk:import"
)

// DownloadPayload references the persisted job; everything else lives in
// the database so a redelivered task never sees stale parameters.
type DownloadPayload struct {
	JobID string `json:"job_id"`
}

type PlaylistCheckPayload struct {
	PlaylistID string `json:"playlist_id"`
}

type BulkImportPayload struct {
	ImportID string `json:"import_id"`
}

func NewDownloadTrackTask(jobID string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(DownloadPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal download payload: %w", err)
	}
	return asynq.NewTask(TypeDownloadTrack, payload, asynq.MaxRetry(maxRetry)), nil
}

func NewPlaylistCheckTask(playlistID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PlaylistCheckPayload{PlaylistID: playlistID})
	if err != nil {
		return nil, fmt.Errorf("marshal playlist check payload: %w", err)
	}
	// A missed check is retried on the next scheduler tick anyway
	return asynq.NewTask(TypePlaylistCheck, payload, asynq.MaxRetry(0)), nil
}

func NewBulkImportTask(importID string) (*asynq.Task, error) {
	payload, err := json.Marshal(BulkImportPayload{ImportID: importID})
	if err != nil {
		return nil, fmt.Errorf("marshal bulk import payload: %w", err)
	}
	return asynq.NewTask(TypeBulkImport, payload, asynq.MaxRetry(0)), nil
}
