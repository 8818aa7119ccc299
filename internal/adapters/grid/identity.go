package grid

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/google/uuid"
)

const nodeIDFile = "node.id"

// loadOrCreateNodeID returns the id persisted under workDir, minting one on
// first start. A node keeps its id across restarts so the baseline still
// recognises it.
func loadOrCreateNodeID(workDir string) (domain.NodeID, error) {
	path := filepath.Join(workDir, nodeIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			return "", newStorageErrorAt("persisted node id is malformed", parseErr, path)
		}
		return domain.NodeID(id), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", newStorageErrorAt("failed to read node id", err, path)
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", newStorageErrorAt("failed to create work directory", err, workDir)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", newStorageErrorAt("failed to persist node id", err, path)
	}
	return domain.NodeID(id), nil
}

func newStorageErrorAt(message string, cause error, path string) *domain.DomainError {
	return newStorageError(message, cause, domain.WithContextDetail("path", path))
}
