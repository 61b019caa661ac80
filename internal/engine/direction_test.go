package engine

import (
	"testing"

	"github.com/openmined/deltasync/internal/delta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	for _, d := range []Direction{Bidirectional, UploadOnly, DownloadOnly} {
		parsed, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Bidirectional, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	var text Direction
	require.NoError(t, text.UnmarshalText([]byte("download_only")))
	assert.Equal(t, DownloadOnly, text)
}

func TestDirectionFilter(t *testing.T) {
	all := []delta.MergedAction{
		delta.MergeUpload,
		delta.MergeDownload,
		delta.MergeDeleteRemote,
		delta.MergeDeleteLocal,
		delta.MergeConflict,
		delta.MergeNone,
	}

	tests := []struct {
		direction Direction
		want      []delta.MergedAction
	}{
		{Bidirectional, all},
		{UploadOnly, []delta.MergedAction{
			delta.MergeUpload, delta.MergeNone, delta.MergeDeleteRemote, delta.MergeNone, delta.MergeConflict, delta.MergeNone,
		}},
		{DownloadOnly, []delta.MergedAction{
			delta.MergeNone, delta.MergeDownload, delta.MergeNone, delta.MergeDeleteLocal, delta.MergeConflict, delta.MergeNone,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.direction.String(), func(t *testing.T) {
			merged := make([]delta.MergedDelta, len(all))
			for i, a := range all {
				merged[i] = delta.MergedDelta{Path: a.String(), Action: a}
			}

			got := tt.direction.Filter(merged)
			actions := make([]delta.MergedAction, len(got))
			for i, m := range got {
				actions[i] = m.Action
			}
			assert.Equal(t, tt.want, actions)
		})
	}
}

func TestDirectionFilter_LeavesInputAlone(t *testing.T) {
	merged := []delta.MergedDelta{
		{Path: "up.txt", Action: delta.MergeUpload},
		{Path: "down.txt", Action: delta.MergeDownload},
	}

	got := DownloadOnly.Filter(merged)
	assert.Equal(t, delta.MergeNone, got[0].Action)
	assert.Equal(t, delta.MergeUpload, merged[0].Action)

	got = Bidirectional.Filter(merged)
	got[1].Action = delta.MergeNone
	assert.Equal(t, delta.MergeDownload, merged[1].Action)
}
