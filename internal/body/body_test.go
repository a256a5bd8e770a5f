package body

import (
	"bytes"
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"application/json", JSON},
		{"application/json; charset=utf-8", JSON},
		{"Application/JSON", JSON},
		{"multipart/form-data; boundary=xyz", Multipart},
		{"text/plain", Text},
		{"application/x-www-form-urlencoded", Text},
		{"", Text},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.contentType))
		})
	}
}

func TestDecode_JSON(t *testing.T) {
	p := Decode("application/json", strings.NewReader("{ \"a\" : 1 }"), RequestFallbacks)

	assert.Equal(t, JSON, p.Kind)
	assert.False(t, p.Substituted)
	assert.NoError(t, p.Err)
	assert.Equal(t, `{"a":1}`, string(p.Data))
}

func TestDecode_MalformedJSONRequest(t *testing.T) {
	for _, raw := range []string{"{not json", "", "{\"a\":1"} {
		p := Decode("application/json", strings.NewReader(raw), RequestFallbacks)

		assert.True(t, p.Substituted, "body %q", raw)
		assert.ErrorIs(t, p.Err, ErrInvalidJSON)
		assert.Equal(t, "{}", string(p.Data))
	}
}

func TestDecode_MalformedJSONResponse(t *testing.T) {
	p := Decode("application/json", strings.NewReader("<html>oops</html>"), ResponseFallbacks)

	assert.True(t, p.Substituted)
	assert.JSONEq(t, `{"error":"Failed to parse JSON response"}`, string(p.Data))
}

func TestDecode_Text(t *testing.T) {
	p := Decode("text/plain", strings.NewReader("hello"), RequestFallbacks)

	assert.Equal(t, Text, p.Kind)
	assert.Equal(t, "hello", string(p.Data))
}

func TestDecode_TextReadFailure(t *testing.T) {
	req := Decode("text/plain", failingReader{}, RequestFallbacks)
	assert.True(t, req.Substituted)
	assert.Equal(t, "", string(req.Data))
	assert.NotNil(t, req.Data)

	resp := Decode("text/html", failingReader{}, ResponseFallbacks)
	assert.Equal(t, "No response body", string(resp.Data))
}

func TestDecode_Multipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "sneaker"))
	fw, err := mw.CreateFormFile("image", "shoe.png")
	require.NoError(t, err)
	binary := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0x10}
	_, err = fw.Write(binary)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	raw := buf.Bytes()
	p := Decode(mw.FormDataContentType(), bytes.NewReader(raw), RequestFallbacks)

	assert.Equal(t, Multipart, p.Kind)
	assert.False(t, p.Substituted)
	assert.Equal(t, raw, p.Data, "multipart bytes must be forwarded unmodified")
}

func TestDecode_MultipartFailures(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"no boundary", "multipart/form-data", "--x\r\n\r\n--x--\r\n"},
		{"wrong boundary", "multipart/form-data; boundary=abc", "--xyz\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--xyz--\r\n"},
		{"empty body", "multipart/form-data; boundary=abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decode(tt.contentType, strings.NewReader(tt.body), RequestFallbacks)
			assert.True(t, p.Substituted)
			assert.Error(t, p.Err)
			assert.Nil(t, p.Data)
			assert.Nil(t, p.Reader())
		})
	}
}

func TestDecode_NilReader(t *testing.T) {
	p := Decode("text/plain", nil, RequestFallbacks)
	assert.False(t, p.Substituted)
	assert.Empty(t, p.Data)
}

func TestNone(t *testing.T) {
	p := None()
	assert.Equal(t, Empty, p.Kind)
	assert.Nil(t, p.Reader())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "json", JSON.String())
	assert.Equal(t, "multipart", Multipart.String())
	assert.Equal(t, "text", Text.String())
	assert.Equal(t, "empty", Empty.String())
}

func TestDecodeAs_TextKeepsMultipartBytes(t *testing.T) {
	raw := "--abc\r\nnot really a form"
	p := DecodeAs(Text, "multipart/form-data; boundary=abc", strings.NewReader(raw), ResponseFallbacks)

	assert.Equal(t, Text, p.Kind)
	assert.False(t, p.Substituted)
	assert.Equal(t, raw, string(p.Data))
}
