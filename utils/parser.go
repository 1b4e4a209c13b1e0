package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/x402pay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParsePaymentRequirements parses and validates a single x402 accepts entry.
func ParsePaymentRequirements(data []byte) (*types.PaymentRequirements, error) {
	var req types.PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}

	if err := validate.Struct(&req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	return &req, nil
}

// requirementBody is the union of the two 402 body shapes gates send: the
// x402 envelope and the flat form. Flat fields tolerate numbers where a
// string is expected, and accepts entries are validated one by one.
type requirementBody struct {
	Error   looseString       `json:"error"`
	Accepts []json.RawMessage `json:"accepts"`

	RequiredAmount    looseString `json:"requiredAmount"`
	Network           looseString `json:"network"`
	Recipient         looseString `json:"recipient"`
	Scheme            looseString `json:"scheme"`
	Asset             looseString `json:"asset"`
	Resource          looseString `json:"resource"`
	Description       looseString `json:"description"`
	MaxTimeoutSeconds looseString `json:"maxTimeoutSeconds"`
}

// looseString decodes any JSON scalar as its text. Numbers keep their
// literal form, null is empty, and objects or arrays keep their raw JSON.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		*s = looseString(data)
	}
	return nil
}

// ParsePaymentRequirement decodes a 402 response body. The first valid
// accepts entry fills the requirement; flat top-level fields override it.
// An invalid accepts entry is reported as an error, but the returned
// requirement still carries every field that could be read.
func ParsePaymentRequirement(data []byte) (*types.PaymentRequirement, error) {
	req := &types.PaymentRequirement{}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}
	req.Raw = append(json.RawMessage(nil), data...)

	var body requirementBody
	if err := json.Unmarshal(data, &body); err != nil {
		return req, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse payment requirement: %v", err),
			Cause:   err,
		}
	}

	var entryErr error
	for i, raw := range body.Accepts {
		entry, err := ParsePaymentRequirements(raw)
		if err != nil {
			if entryErr == nil {
				msg := err.Error()
				if xe, ok := err.(*types.X402Error); ok {
					msg = xe.Message
				}
				entryErr = &types.X402Error{
					Code:    types.ErrInvalidPayload,
					Message: fmt.Sprintf("accepts[%d]: %s", i, msg),
					Cause:   err,
				}
			}
			continue
		}
		req.Accepts = append(req.Accepts, *entry)
	}

	req.Error = string(body.Error)
	if len(req.Accepts) > 0 {
		first := req.Accepts[0]
		req.RequiredAmount = first.MaxAmountRequired
		req.Network = first.Network
		req.Recipient = first.PayTo
		req.Scheme = first.Scheme
		req.Asset = first.Asset
		req.Resource = first.Resource
		req.Description = first.Description
		req.MaxTimeoutSeconds = first.MaxTimeoutSeconds
	}

	override(&req.RequiredAmount, body.RequiredAmount)
	override(&req.Network, body.Network)
	override(&req.Recipient, body.Recipient)
	override(&req.Scheme, body.Scheme)
	override(&req.Asset, body.Asset)
	override(&req.Resource, body.Resource)
	override(&req.Description, body.Description)
	if secs, ok := seconds(body.MaxTimeoutSeconds); ok {
		req.MaxTimeoutSeconds = secs
	}

	return req, entryErr
}

func override(dst *string, v looseString) {
	if v != "" {
		*dst = string(v)
	}
}

// seconds reads a positive whole number of seconds, accepting "60", 60 and 60.0.
func seconds(v looseString) (int, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(f), true
}
