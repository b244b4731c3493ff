package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRequest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sendRequest(&buf, newRequest(1, MethodToolsList, nil)))
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, sendRequest(&buf, newNotification(MethodInitialized, nil)))
	assert.Equal(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n", buf.String())
}

func TestReadResponse(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}` + "\n\n"))

	resp, err := readResponse(r)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.ID)
	assert.Equal(t, int64(7), *resp.ID)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))

	resp, err = readResponse(r)
	require.NoError(t, err)
	assert.Nil(t, resp, "empty line")

	resp, err = readResponse(r)
	require.NoError(t, err)
	assert.Nil(t, resp, "end of stream")
}

func TestReadResponse_NoTrailingNewline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"jsonrpc":"2.0","id":1,"error":{"code":-1,"message":"x"}}`))
	resp, err := readResponse(r)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "x", resp.Error.Message)
}

func TestReadResponse_Invalid(t *testing.T) {
	_, err := readResponse(bufio.NewReader(strings.NewReader("not json\n")))
	require.Error(t, err)
}

func TestCallResult_Value(t *testing.T) {
	res := &CallResult{Content: []ContentItem{{Type: "text", Text: `{"a":`}, {Type: "image"}, {Type: "text", Text: `1}`}}}
	assert.Equal(t, `{"a":1}`, res.Text())
	assert.Equal(t, json.RawMessage(`{"a":1}`), res.Value())

	res = &CallResult{Content: []ContentItem{{Type: "text", Text: "plain words"}}}
	assert.Equal(t, "plain words", res.Value())
}
