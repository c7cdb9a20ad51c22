// Package compaction implements the compaction logic for RockyardKV.
//
// Compaction merges and reorganizes SST files to optimize read performance
// and reclaim space from deleted/overwritten keys.
package compaction

import (
	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/manifest"
)

// Compaction represents a single compaction operation.
// It describes which files to read from (inputs) and where to write to (output level).
type Compaction struct {
	// Input files organized by level
	Inputs []*CompactionInputFiles

	// The output level
	OutputLevel int

	// Maximum output file size
	MaxOutputFileSize uint64

	// Smallest and largest keys across all input files
	SmallestKey []byte
	LargestKey  []byte

	// Edit to record changes to the version
	Edit *manifest.VersionEdit

	// Whether this is a trivial move (no merging needed)
	IsTrivialMove bool

	// Whether no level below OutputLevel holds any file that might still
	// contain an older version of a key in this compaction's range. When
	// true, a DELETION tombstone visible to every live snapshot can be
	// dropped instead of carried forward — there is nothing left for it
	// to shadow.
	IsBottommostLevel bool

	// The score that triggered this compaction
	Score float64

	// The reason for this compaction
	Reason CompactionReason
}

// CompactionInputFiles represents input files from a single level.
type CompactionInputFiles struct {
	Level int
	Files []*manifest.FileMetaData
}

// CompactionReason indicates why a compaction was triggered.
type CompactionReason int

const (
	CompactionReasonUnknown CompactionReason = iota
	CompactionReasonLevelL0FileNumTrigger
	CompactionReasonLevelMaxLevelSize
	CompactionReasonManualCompaction
	CompactionReasonFlush
)

func (r CompactionReason) String() string {
	switch r {
	case CompactionReasonLevelL0FileNumTrigger:
		return "L0 file count"
	case CompactionReasonLevelMaxLevelSize:
		return "Level size"
	case CompactionReasonManualCompaction:
		return "Manual"
	case CompactionReasonFlush:
		return "Flush"
	default:
		return "Unknown"
	}
}

// NewCompaction creates a new Compaction with the given inputs and output level.
func NewCompaction(inputs []*CompactionInputFiles, outputLevel int) *Compaction {
	c := &Compaction{
		Inputs:            inputs,
		OutputLevel:       outputLevel,
		MaxOutputFileSize: 64 * 1024 * 1024, // 64MB default
		Edit:              manifest.NewVersionEdit(),
	}
	c.computeKeyRange()
	return c
}

// NumInputFiles returns the total number of input files.
func (c *Compaction) NumInputFiles() int {
	total := 0
	for _, in := range c.Inputs {
		total += len(in.Files)
	}
	return total
}

// StartLevel returns the start level of this compaction.
func (c *Compaction) StartLevel() int {
	if len(c.Inputs) == 0 {
		return -1
	}
	return c.Inputs[0].Level
}

// computeKeyRange computes the smallest and largest keys across all input files.
func (c *Compaction) computeKeyRange() {
	for i, in := range c.Inputs {
		for j, f := range in.Files {
			if i == 0 && j == 0 {
				c.SmallestKey = f.Smallest
				c.LargestKey = f.Largest
			} else {
				// Update smallest
				if len(f.Smallest) > 0 {
					if len(c.SmallestKey) == 0 || dbformat.CompareInternalKeys(f.Smallest, c.SmallestKey) < 0 {
						c.SmallestKey = f.Smallest
					}
				}
				// Update largest
				if len(f.Largest) > 0 {
					if len(c.LargestKey) == 0 || dbformat.CompareInternalKeys(f.Largest, c.LargestKey) > 0 {
						c.LargestKey = f.Largest
					}
				}
			}
		}
	}
}

// AddInputDeletions adds delete operations for all input files to the edit.
func (c *Compaction) AddInputDeletions() {
	for _, in := range c.Inputs {
		for _, f := range in.Files {
			c.Edit.DeleteFile(in.Level, f.FD.GetNumber())
		}
	}
}

// DeletedFiles returns the deleted files in the edit.
func (c *Compaction) DeletedFiles() []manifest.DeletedFileEntry {
	return c.Edit.DeletedFiles
}

// MarkFilesBeingCompacted marks all input files as being compacted.
func (c *Compaction) MarkFilesBeingCompacted(beingCompacted bool) {
	for _, in := range c.Inputs {
		for _, f := range in.Files {
			f.BeingCompacted = beingCompacted
		}
	}
}
