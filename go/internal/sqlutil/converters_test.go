package sqlutil

import (
	"encoding/json"
	"testing"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONB(t *testing.T) {
	t.Run("nil is null", func(t *testing.T) {
		got, err := ToJSONB(nil)
		require.NoError(t, err)
		assert.False(t, got.Valid)
	})

	t.Run("nil map is null", func(t *testing.T) {
		var m map[string]any
		got, err := ToJSONB(m)
		require.NoError(t, err)
		assert.False(t, got.Valid)
	})

	t.Run("raw message passes through", func(t *testing.T) {
		got, err := ToJSONB(json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		assert.True(t, got.Valid)
		assert.JSONEq(t, `{"a":1}`, string(got.RawMessage))
	})

	t.Run("struct is marshaled", func(t *testing.T) {
		got, err := ToJSONB(struct {
			URL string `json:"callback_url"`
		}{URL: "http://x"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"callback_url":"http://x"}`, string(got.RawMessage))
	})
}

func TestFromJSONB(t *testing.T) {
	var tags [][]string
	require.NoError(t, FromJSONB(pqtype.NullRawMessage{RawMessage: []byte(`[["a","b"]]`), Valid: true}, &tags))
	assert.Equal(t, [][]string{{"a", "b"}}, tags)

	var untouched = map[string]any{"keep": true}
	require.NoError(t, FromJSONB(pqtype.NullRawMessage{}, &untouched))
	assert.Equal(t, map[string]any{"keep": true}, untouched)

	assert.Error(t, FromJSONB(pqtype.NullRawMessage{RawMessage: []byte(`{`), Valid: true}, &tags))
}

func TestStringConverters(t *testing.T) {
	assert.False(t, ToSqlString("").Valid)
	assert.Equal(t, "x", ToSqlString("x").String)
	assert.Nil(t, FromSqlStringPtr(ToSqlStringPtr(nil)))

	s := "failed"
	assert.Equal(t, &s, FromSqlStringPtr(ToSqlStringPtr(&s)))
}
