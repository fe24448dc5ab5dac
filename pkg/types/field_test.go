package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patchPayload struct {
	Notes    Field[*string] `json:"notes"`
	Received Field[bool]    `json:"received"`
	Number   Field[int]     `json:"number"`
	Items    Field[[]int]   `json:"items"`
}

func TestFieldUnmarshalDistinguishesAbsentFromNull(t *testing.T) {
	var got patchPayload
	require.NoError(t, json.Unmarshal([]byte(`{"notes": null, "received": true}`), &got))

	assert.True(t, got.Notes.Set, "explicit null must count as supplied")
	assert.Nil(t, got.Notes.Value)
	assert.True(t, got.Received.Set)
	assert.True(t, got.Received.Value)
	assert.False(t, got.Number.Set, "absent key must stay unset")
	assert.False(t, got.Items.Set)
}

func TestFieldUnmarshalNullResetsNonPointer(t *testing.T) {
	got := patchPayload{Received: Some(true)}
	require.NoError(t, json.Unmarshal([]byte(`{"received": null}`), &got))

	assert.True(t, got.Received.Set)
	assert.False(t, got.Received.Value)
}

func TestFieldUnmarshalValues(t *testing.T) {
	var got patchPayload
	require.NoError(t, json.Unmarshal([]byte(`{"notes": "fragile", "number": 7, "items": []}`), &got))

	require.True(t, got.Notes.Set)
	require.NotNil(t, got.Notes.Value)
	assert.Equal(t, "fragile", *got.Notes.Value)
	assert.Equal(t, Some(7), got.Number)
	assert.True(t, got.Items.Set)
	assert.Empty(t, got.Items.Value)
}

func TestFieldUnmarshalTypeMismatch(t *testing.T) {
	var got patchPayload
	assert.Error(t, json.Unmarshal([]byte(`{"number": "seven"}`), &got))
}

func TestFieldApplyTo(t *testing.T) {
	target := 3

	assert.False(t, Field[int]{}.ApplyTo(&target))
	assert.Equal(t, 3, target)

	assert.True(t, Some(9).ApplyTo(&target))
	assert.Equal(t, 9, target)
}

func TestFieldMarshal(t *testing.T) {
	out, err := json.Marshal(patchPayload{Number: Some(4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"notes": null, "received": null, "number": 4, "items": null}`, string(out))
}
