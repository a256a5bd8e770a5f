// Package body classifies HTTP bodies by content type and decodes them with a
// per-kind fallback, so that a malformed body on either leg never aborts a call.
package body

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the encoding a body is handled with.
type Kind int

const (
	Empty Kind = iota
	JSON
	Multipart
	Text
)

func (k Kind) String() string {
	switch k {
	case JSON:
		return "json"
	case Multipart:
		return "multipart"
	case Text:
		return "text"
	default:
		return "empty"
	}
}

// ErrInvalidJSON is recorded on a Payload whose JSON body did not parse.
var ErrInvalidJSON = errors.New("body is not valid JSON")

// Fallbacks are the bodies substituted when decoding a kind fails.
// A nil slice means "send no body".
type Fallbacks struct {
	JSON      []byte
	Multipart []byte
	Text      []byte
}

// RequestFallbacks are used for bodies travelling from the caller to a backend.
var RequestFallbacks = Fallbacks{
	JSON:      []byte("{}"),
	Multipart: nil,
	Text:      []byte{},
}

// ResponseFallbacks are used for bodies travelling from a backend to the caller.
var ResponseFallbacks = Fallbacks{
	JSON:      []byte(`{"error":"Failed to parse JSON response"}`),
	Multipart: []byte("No response body"),
	Text:      []byte("No response body"),
}

// Payload is a decoded body. Data holds compact JSON, the untouched multipart
// stream, or raw text depending on Kind.
type Payload struct {
	Kind        Kind
	ContentType string
	Data        []byte
	Substituted bool  // Data is the fallback for Kind
	Err         error // why the fallback was used
}

// Classify picks the Kind for a Content-Type header value. Matching is by
// substring so that parameters and vendor suffixes do not matter.
func Classify(contentType string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return JSON
	case strings.Contains(ct, "multipart/form-data"):
		return Multipart
	default:
		return Text
	}
}

// Decode reads r according to contentType. On any failure the matching
// fallback is substituted and the cause is kept in Payload.Err.
func Decode(contentType string, r io.Reader, fb Fallbacks) Payload {
	return DecodeAs(Classify(contentType), contentType, r, fb)
}

// DecodeAs is Decode with the kind chosen by the caller.
func DecodeAs(kind Kind, contentType string, r io.Reader, fb Fallbacks) Payload {
	p := Payload{Kind: kind, ContentType: contentType}
	if r == nil {
		r = bytes.NewReader(nil)
	}

	data, err := io.ReadAll(r)
	if err == nil {
		switch p.Kind {
		case JSON:
			data, err = compactJSON(data)
		case Multipart:
			err = checkMultipart(contentType, data)
		}
	}
	if err != nil {
		p.Substituted = true
		p.Err = err
		switch p.Kind {
		case JSON:
			p.Data = fb.JSON
		case Multipart:
			p.Data = fb.Multipart
		default:
			p.Data = fb.Text
		}
		return p
	}

	p.Data = data
	return p
}

// None is the payload of a request that carries no body.
func None() Payload {
	return Payload{Kind: Empty}
}

// Reader returns the payload as a request body, or nil when there is none.
func (p Payload) Reader() io.Reader {
	if p.Data == nil {
		return nil
	}
	return bytes.NewReader(p.Data)
}

func compactJSON(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return buf.Bytes(), nil
}

// checkMultipart walks every part so that a truncated or mis-bounded form is
// rejected here rather than by the backend.
func checkMultipart(contentType string, data []byte) error {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("parse multipart content type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return errors.New("multipart content type has no boundary")
	}

	mr := multipart.NewReader(bytes.NewReader(data), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read multipart part: %w", err)
		}
		if _, err := io.Copy(io.Discard, part); err != nil {
			return fmt.Errorf("read multipart part: %w", err)
		}
	}
}
