package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompleteJSONClosesOpenBracketsAndString(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"files":[{"id":"1","name":"a`,
		`{"files":[{"id":"1","name":"a"}`,
		`{"files":[`,
		`{`,
		`{"a":"b\"c`,
	}
	for _, c := range cases {
		completed := CompleteJSON(c)
		var v any
		err := json.Unmarshal([]byte(completed), &v)
		require.NoError(t, err, completed)
	}
}

func TestCompleteJSONLeavesCompleteDocumentUnchanged(t *testing.T) {
	t.Parallel()

	doc := `{"files":[{"id":"1","name":"a"}]}`
	require.Equal(t, doc, CompleteJSON(doc))
}

func TestCompleteJSONHandlesEscapedQuoteInsideString(t *testing.T) {
	t.Parallel()

	completed := CompleteJSON(`{"name":"say \"hi\" to`)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(completed), &v))
	require.Equal(t, `say "hi" to`, v["name"])
}
