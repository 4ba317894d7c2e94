package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	b, err := Encode(FriendStatusUpdate, map[string]any{"email": "a@x.io", "online": false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"friendStatusUpdate","data":{"email":"a@x.io","online":false}}`, string(b))

	b, err = Encode(Logout, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"logout","data":{}}`, string(b))

	_, err = Encode("bad", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestEncodeReturnsIndependentBuffers(t *testing.T) {
	a, err := Encode("one", map[string]int{"n": 1})
	require.NoError(t, err)
	b, err := Encode("two", map[string]int{"n": 2})
	require.NoError(t, err)
	assert.Contains(t, string(a), `"one"`)
	assert.Contains(t, string(b), `"two"`)
}

func TestDecode(t *testing.T) {
	f, err := Decode([]byte(`{"event":"joinGroup","data":{"groupId":"g1"}}`))
	require.NoError(t, err)
	assert.Equal(t, JoinGroup, f.Name)
	assert.Equal(t, "g1", f.Str("groupId"))

	var payload struct {
		GroupID string `json:"groupId"`
	}
	require.NoError(t, f.Bind(&payload))
	assert.Equal(t, "g1", payload.GroupID)

	f, err = Decode([]byte(`{"event":"register","data":"u-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "u-1", f.Str(""))

	_, err = Decode([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrBadFrame))
	_, err = Decode([]byte(`{"data":{}}`))
	assert.True(t, errors.Is(err, ErrBadFrame))
	_, err = Decode([]byte(`{"event":7}`))
	assert.True(t, errors.Is(err, ErrBadFrame))

	f, err = Decode([]byte(`{"event":"logout"}`))
	require.NoError(t, err)
	assert.Error(t, f.Bind(&payload))
}

func TestRoundTripThroughDecode(t *testing.T) {
	b, err := Encode(NewGroupMessage, map[string]string{"groupId": "g1"})
	require.NoError(t, err)
	f, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, NewGroupMessage, f.Name)
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(f.Data.Raw), &m))
	assert.Equal(t, "g1", m["groupId"])
}
