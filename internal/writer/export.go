package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/edgebench/edgebench/pkg/models"
)

// Exporter persists session and summary artifacts as JSON files in the
// session directory. Exports are the rehydration source for joint runs, so
// every write is atomic: a torn file would silently corrupt the combined
// summary.
type Exporter struct {
	sessionMgr *SessionManager
	logger     *slog.Logger
}

// NewExporter creates an exporter rooted at the manager's session directory
func NewExporter(sessionMgr *SessionManager, logger *slog.Logger) *Exporter {
	return &Exporter{
		sessionMgr: sessionMgr,
		logger:     logger,
	}
}

// WriteSession exports a benchmark session and returns the artifact path
func (e *Exporter) WriteSession(session *models.Session) (string, error) {
	path := e.sessionMgr.GetSessionPath(session.ID)
	if err := writeJSONAtomic(path, session); err != nil {
		return "", fmt.Errorf("failed to export session: %w", err)
	}

	e.logger.Info("Session exported",
		"path", path,
		"problems", len(session.Problems),
		"successes", session.SuccessCount())
	return path, nil
}

// ReadSession loads a previously exported session. Joint runs use this to
// rehydrate evicted batch results when combining.
func (e *Exporter) ReadSession(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session export: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session export: %w", err)
	}
	return &session, nil
}

// WriteSummary exports the joint run summary and returns the artifact path
func (e *Exporter) WriteSummary(summary *models.JointSummary) (string, error) {
	path := e.sessionMgr.GetJointSummaryPath()
	if err := writeJSONAtomic(path, summary); err != nil {
		return "", fmt.Errorf("failed to export joint summary: %w", err)
	}

	e.logger.Info("Joint summary exported",
		"path", path,
		"sessions", len(summary.Sessions),
		"complete", summary.Complete)
	return path, nil
}

// writeJSONAtomic writes to a temp file and renames it into place
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}

	return nil
}
