package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractResponseFromContent_Empty(t *testing.T) {
	assert.Equal(t, NoResponseContent, ExtractResponseFromContent(""))
}

func TestExtractResponseFromContent_PlainTextVerbatim(t *testing.T) {
	inputs := []string{
		"hello world",
		"  padded text stays padded  ",
		"   ",
		"Response: not the markdown marker",
		"{ not really json",
		"a list: [unclosed",
		"multi\nline\ntext",
	}
	for _, in := range inputs {
		assert.Equal(t, in, ExtractResponseFromContent(in), "input %q", in)
	}
}

func TestExtractResponseFromContent_MarkdownMarker(t *testing.T) {
	assert.Equal(t, "hello world", ExtractResponseFromContent("prefix **Response:** hello world"))
	assert.Equal(t, "first **Response:** second",
		ExtractResponseFromContent("**Response:** first **Response:** second"))
	assert.Equal(t, "", ExtractResponseFromContent("trailing marker **Response:**   "))
}

func TestExtractResponseFromContent_BlankMarkerSectionIsNotReinterpreted(t *testing.T) {
	content := `{"response":"from json"} **Response:**`
	assert.Equal(t, "", ExtractResponseFromContent(content))
	// a second pass sees an empty payload
	assert.Equal(t, NoResponseContent, ExtractResponseFromContent(ExtractResponseFromContent(content)))
}

func TestExtractResponseFromContent_MarkdownWinsOverJSON(t *testing.T) {
	content := `{"protocol":"aio","response":"from json"} **Response:** from markdown`
	assert.Equal(t, "from markdown", ExtractResponseFromContent(content))
}

func TestExtractResponseFromContent_ProtocolPayload(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "simple",
			content: `{"protocol":"aio","response":"hi there"}`,
			want:    "hi there",
		},
		{
			name:    "trimmed",
			content: `{"trace_id":"abc","response":"  spaced  "}`,
			want:    "spaced",
		},
		{
			name:    "escaped characters",
			content: `{"aioProtocol":"1.0","response":"say \"hi\"\nthen go"}`,
			want:    "say \"hi\"\nthen go",
		},
		{
			name:    "broken json still matches",
			content: `{"protocolStep": 3, "response": "partial result", "outputs": [`,
			want:    "partial result",
		},
		{
			name:    "empty response falls through to verbatim",
			content: `{"protocol":"aio","response":""}`,
			want:    `{"protocol":"aio","response":""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractResponseFromContent(tt.content))
		})
	}
}

func TestExtractResponseFromContent_GenericJSON(t *testing.T) {
	assert.Equal(t, "nested value", ExtractResponseFromContent(`{"response":"nested value"}`))
	assert.Equal(t, "inner", ExtractResponseFromContent(`{"result":{"response":"inner"}}`))
	assert.Equal(t, "wrapped", ExtractResponseFromContent(`Here you go: {"response": "wrapped"} -- done`))
}

func TestExtractResponseFromContent_JSONWithoutResponse(t *testing.T) {
	content := `{"jsonrpc":"2.0","outputs":[{"type":"text","value":"x"}]}`
	assert.Equal(t, content, ExtractResponseFromContent(content))
}

func TestExtractResponseFromContent_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"prefix **Response:** hello world",
		`{"protocol":"aio","response":"hi there"}`,
		`{"response":"nested value"}`,
		`{"data":{"response":"deep"}}`,
		"```json\n{\"response\": \"fenced\",}\n```",
	}
	for _, in := range inputs {
		once := ExtractResponseFromContent(in)
		assert.Equal(t, once, ExtractResponseFromContent(once), "input %q", in)
	}
}

func TestIsLikelyJSON(t *testing.T) {
	assert.True(t, IsLikelyJSON(`{"a":1}`))
	assert.True(t, IsLikelyJSON("  [1,2]\n"))
	assert.True(t, IsLikelyJSON(`{}`))
	assert.False(t, IsLikelyJSON(`{"a":1`))
	assert.False(t, IsLikelyJSON(`text {"a":1}`))
	assert.False(t, IsLikelyJSON(`{`))
	assert.False(t, IsLikelyJSON(``))
}

func TestIsLikelyProtocolPayload(t *testing.T) {
	assert.True(t, IsLikelyProtocolPayload(`{"protocol":"aio"}`))
	assert.True(t, IsLikelyProtocolPayload(`{"aioProtocol":"1"}`))
	assert.True(t, IsLikelyProtocolPayload(`{"protocolStep":2}`))
	assert.True(t, IsLikelyProtocolPayload(`prose around "trace_id": "x"`))
	assert.False(t, IsLikelyProtocolPayload(`the protocol is fine`))
	assert.False(t, IsLikelyProtocolPayload(`{"response":"x"}`))
}
