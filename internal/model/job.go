package model

import "github.com/google/uuid"

// CopyJob is owned by exactly one copy worker for its whole lifetime,
// retries included.
type CopyJob struct {
	ID          string
	SourcePath  string
	RelPath     string
	Episode     uint64
	Snapshot    Fingerprint
	Attempt     int
	MaxAttempts int
}

func NewCopyJob(file WatchedFile, maxAttempts int) CopyJob {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return CopyJob{
		ID:          uuid.NewString(),
		SourcePath:  file.Path,
		RelPath:     file.RelPath,
		Episode:     file.Episode,
		Snapshot:    Fingerprint{Size: file.Size, ModTime: file.ModTime},
		MaxAttempts: maxAttempts,
	}
}
