// Package storage holds JobStore implementations.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// encodeMaps serializes the map columns of a Job.
func encodeMaps(j jobs.Job) (result, files []byte, err error) {
	result, err = json.Marshal(j.Result)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	files, err = json.Marshal(j.Artifacts)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding files: %w", err)
	}
	return result, files, nil
}

func decodeMaps(j *jobs.Job, result, files []byte) error {
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &j.Artifacts); err != nil {
			return fmt.Errorf("decoding files: %w", err)
		}
	}
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	return nil
}
