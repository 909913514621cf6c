// Package chunker plans and processes a large file in fixed-size,
// resumable chunks, persisting a checkpoint after every successfully
// handled chunk so an interrupted run can resume without redoing work.
package chunker

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/util"
)

// DefaultChunkSize is used when the caller does not override it.
const DefaultChunkSize = 64 * util.MiB

// Spec describes one chunk's byte range within the source file.
type Spec struct {
	ID          int   `json:"id"`
	Start       int64 `json:"start"`
	EndInclusive int64 `json:"end_inclusive"`
	Size        int64 `json:"size"`
}

// Checkpoint is the on-disk resumability record for one chunked run.
type Checkpoint struct {
	SourcePath        string  `json:"source_path"`
	FileSize          int64   `json:"file_size"`
	Mtime             *int64  `json:"mtime,omitempty"`
	ChunkSize         int64   `json:"chunk_size"`
	CompletedChunkIDs []int   `json:"completed_chunk_ids"`
	BytesProcessed    int64   `json:"bytes_processed"`
}

// Summary is returned once Process finishes (successfully or with the
// checkpoint preserved for resume).
type Summary struct {
	ChunksProcessed int
	BytesProcessed  int64
	CheckpointCleared bool
}

// Plan computes ceil(file_size/chunk_size) specs covering [0, file_size)
// exactly, without overlap. Accepts any positive chunkSize.
func Plan(fileSize, chunkSize int64) ([]Spec, error) {
	if chunkSize <= 0 {
		return nil, ageerr.ConfigurationError("chunk_size", strconv.FormatInt(chunkSize, 10), "must be greater than 0")
	}
	if fileSize <= 0 {
		return nil, nil
	}
	var specs []Spec
	var start int64
	id := 0
	for start < fileSize {
		end := start + chunkSize - 1
		if end > fileSize-1 {
			end = fileSize - 1
		}
		specs = append(specs, Spec{ID: id, Start: start, EndInclusive: end, Size: end - start + 1})
		start = end + 1
		id++
	}
	return specs, nil
}

// Handler processes one chunk's bytes. Returning an error halts the
// entire run and leaves the checkpoint on disk for a later resume.
type Handler func(spec Spec, data []byte) error

// Chunker drives Process over a single source file, persisting its
// checkpoint alongside the source (as "<source>.cage-chunks.json").
type Chunker struct {
	SourcePath     string
	ChunkSize      int64
	checkpointPath string
	bufPool        *util.BufferPool
}

// New constructs a Chunker for sourcePath with the given chunk size
// (DefaultChunkSize if zero).
func New(sourcePath string, chunkSize int64) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{
		SourcePath:     sourcePath,
		ChunkSize:      chunkSize,
		checkpointPath: sourcePath + ".cage-chunks.json",
		bufPool:        util.NewBufferPool(int(chunkSize)),
	}
}

// Process iterates the chunk plan in order, skipping chunks already
// present in a loaded checkpoint, invoking handler on each remaining
// chunk, and persisting the checkpoint (write-new-then-rename) after
// every successful chunk. On full traversal the checkpoint file is
// deleted and the summary reports checkpoint_cleared=true.
func (c *Chunker) Process(handler Handler) (Summary, error) {
	info, err := os.Stat(c.SourcePath)
	if err != nil {
		return Summary{}, ageerr.FileError("stat", c.SourcePath, err)
	}
	fileSize := info.Size()

	specs, err := Plan(fileSize, c.ChunkSize)
	if err != nil {
		return Summary{}, err
	}

	checkpoint, err := c.loadOrInit(fileSize)
	if err != nil {
		return Summary{}, err
	}

	completed := make(map[int]bool, len(checkpoint.CompletedChunkIDs))
	for _, id := range checkpoint.CompletedChunkIDs {
		completed[id] = true
	}

	f, err := os.Open(c.SourcePath)
	if err != nil {
		return Summary{}, ageerr.FileError("open", c.SourcePath, err)
	}
	defer f.Close()

	processedThisRun := 0
	for _, spec := range specs {
		if completed[spec.ID] {
			continue
		}

		full := c.bufPool.Get()
		buf := full[:spec.Size]
		if _, err := f.ReadAt(buf, spec.Start); err != nil {
			c.bufPool.Put(full)
			return Summary{}, ageerr.IoError("read_chunk", c.SourcePath, err)
		}

		handlerErr := handler(spec, buf)
		c.bufPool.Put(full)
		if handlerErr != nil {
			return Summary{ChunksProcessed: processedThisRun, BytesProcessed: checkpoint.BytesProcessed}, handlerErr
		}

		completed[spec.ID] = true
		checkpoint.CompletedChunkIDs = append(checkpoint.CompletedChunkIDs, spec.ID)
		checkpoint.BytesProcessed = spec.EndInclusive + 1
		if err := c.save(checkpoint); err != nil {
			return Summary{}, err
		}
		processedThisRun++
	}

	if err := os.Remove(c.checkpointPath); err != nil && !os.IsNotExist(err) {
		return Summary{}, ageerr.FileError("remove", c.checkpointPath, err)
	}

	return Summary{
		ChunksProcessed:   processedThisRun,
		BytesProcessed:    checkpoint.BytesProcessed,
		CheckpointCleared: true,
	}, nil
}

// loadOrInit loads an existing checkpoint and validates it against the
// current file size, refusing to resume (ConfigurationError) on a
// mismatch; absent a checkpoint it starts a fresh one.
func (c *Chunker) loadOrInit(fileSize int64) (*Checkpoint, error) {
	data, err := os.ReadFile(c.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Checkpoint{
				SourcePath: c.SourcePath,
				FileSize:   fileSize,
				ChunkSize:  c.ChunkSize,
			}, nil
		}
		return nil, ageerr.FileError("read", c.checkpointPath, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, ageerr.ConfigurationError("checkpoint", c.checkpointPath, "failed to parse existing checkpoint: "+err.Error())
	}
	if cp.FileSize != fileSize {
		return nil, ageerr.ConfigurationError("checkpoint_file_size", strconv.FormatInt(cp.FileSize, 10)+" != "+strconv.FormatInt(fileSize, 10), "source file size changed since the checkpoint was written; refusing to resume")
	}
	if cp.ChunkSize != c.ChunkSize {
		return nil, ageerr.ConfigurationError("checkpoint_chunk_size", strconv.FormatInt(cp.ChunkSize, 10)+" != "+strconv.FormatInt(c.ChunkSize, 10), "chunk size changed since the checkpoint was written; refusing to resume")
	}
	return &cp, nil
}

// save persists the checkpoint via write-new-then-rename for crash safety.
func (c *Chunker) save(cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return ageerr.IoError("marshal", c.checkpointPath, err)
	}
	tmp := c.checkpointPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ageerr.FileError("write", tmp, err)
	}
	if err := os.Rename(tmp, c.checkpointPath); err != nil {
		return ageerr.FileError("rename", c.checkpointPath, err)
	}
	return nil
}
