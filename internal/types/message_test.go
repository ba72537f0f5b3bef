package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRecordPositionalJSON(t *testing.T) {
	tests := []struct {
		name   string
		record MessageRecord
		want   string
	}{
		{
			name:   "empty row",
			record: MessageRecord{},
			want:   `[null,null,false,null,null,false,false,false]`,
		},
		{
			name: "text reply",
			record: MessageRecord{
				Reply:  &Reply{Sender: "Alice", QuotedText: "lunch?"},
				Header: "[12:01, 03/05/2025] Bob: ",
				Text:   "sure",
			},
			want: `["Alice","lunch?",false,"[12:01, 03/05/2025] Bob: ","sure",false,false,false]`,
		},
		{
			name: "media reply without quote",
			record: MessageRecord{
				Reply:  &Reply{Sender: "Alice", IsMedia: true},
				Header: "[09:15, None] Bob:",
				Media:  MediaSticker,
			},
			want: `["Alice",null,true,"[09:15, None] Bob:",null,false,true,false]`,
		},
		{
			name:   "video",
			record: MessageRecord{Media: MediaVideo},
			want:   `[null,null,false,null,null,false,false,true]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.record)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var arr []interface{}
			require.NoError(t, json.Unmarshal(data, &arr))
			assert.Len(t, arr, FieldCount)
		})
	}
}

func TestMediaKindRoundTrip(t *testing.T) {
	for _, k := range []MediaKind{MediaNone, MediaImage, MediaSticker, MediaVideo} {
		got, err := ParseMediaKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseMediaKind("gif")
	assert.Error(t, err)
}
