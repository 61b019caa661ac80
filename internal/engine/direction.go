package engine

import (
	"fmt"
	"slices"

	"github.com/openmined/deltasync/internal/delta"
)

// Direction limits which way a pass may move changes.
type Direction uint8

const (
	Bidirectional Direction = iota
	UploadOnly
	DownloadOnly
)

var directionNames = [...]string{
	Bidirectional: "bidirectional",
	UploadOnly:    "upload_only",
	DownloadOnly:  "download_only",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func ParseDirection(s string) (Direction, error) {
	if s == "" {
		return Bidirectional, nil
	}
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return Bidirectional, fmt.Errorf("unknown sync direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if int(d) >= len(directionNames) {
		return nil, fmt.Errorf("invalid sync direction %d", uint8(d))
	}
	return []byte(directionNames[d]), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Filter returns a copy of merged in which decisions that move data against
// the direction are turned into None. Conflicts are always kept.
func (d Direction) Filter(merged []delta.MergedDelta) []delta.MergedDelta {
	merged = slices.Clone(merged)
	if d == Bidirectional {
		return merged
	}
	for i := range merged {
		switch merged[i].Action {
		case delta.MergeDownload, delta.MergeDeleteLocal:
			if d == UploadOnly {
				merged[i].Action = delta.MergeNone
			}
		case delta.MergeUpload, delta.MergeDeleteRemote:
			if d == DownloadOnly {
				merged[i].Action = delta.MergeNone
			}
		}
	}
	return merged
}
