package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodyBytes bounds request bodies; a transaction is a handful of bytes.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	looksJSON   bool
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.looksJSON = strings.HasPrefix(p.contentType, "application/json")

	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if p.looksJSON || body[0] == '{' {
		p.looksJSON = true
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("decode JSON: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the body was declared or detected as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.looksJSON
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// transactionInput is the raw create request before the engine validates it.
type transactionInput struct {
	Category string
	Amount   float64
	JSON     bool
}

// errMalformedBody marks requests whose body could not be decoded at all.
var errMalformedBody = errors.New("malformed request body")

// parseTransactionInput reads category and amount from a form or JSON body.
// Body decoding failures wrap errMalformedBody; a non-numeric amount wraps
// core.ErrInvalidAmount.
func parseTransactionInput(w http.ResponseWriter, r *http.Request) (transactionInput, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return transactionInput{JSON: p.IsJSON()}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	in := transactionInput{
		Category: p.Get("category"),
		JSON:     p.IsJSON(),
	}
	amount, err := parseAmount(p.Get("amount"))
	if err != nil {
		return in, err
	}
	in.Amount = amount
	return in, nil
}
