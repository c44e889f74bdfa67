package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/go24so/pkg/apierror"
)

// Validator is implemented by models that check their own invariants after
// decoding.
type Validator interface {
	Validate() error
}

// Decode parses the response body as a single T.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, apierror.New(apierror.KindValidation, "empty response body")
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, decodeError(resp, err)
	}
	if err := validate(&out); err != nil {
		return out, err
	}
	return out, nil
}

// DecodeList parses a list payload. The body may be a bare array, an
// object whose "data" member is the array, or a single object which is
// returned as a one-element list.
func DecodeList[T any](resp *Response) ([]T, error) {
	if resp == nil {
		return nil, apierror.New(apierror.KindValidation, "empty response body")
	}
	items, err := decodeListBody[T](resp.Body)
	if err != nil {
		return nil, decodeError(resp, err)
	}
	for i := range items {
		if err := validate(&items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func decodeListBody[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []T{}, nil
	}

	switch body[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil

	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, err
		}
		if data, ok := envelope["data"]; ok {
			data = bytes.TrimSpace(data)
			if bytes.Equal(data, []byte("null")) {
				return []T{}, nil
			}
			if len(data) > 0 && data[0] == '[' {
				return decodeListBody[T](data)
			}
		}
		var item T
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, err
		}
		return []T{item}, nil

	case 'n':
		if bytes.Equal(body, []byte("null")) {
			return []T{}, nil
		}
	}
	return nil, fmt.Errorf("unexpected list payload starting with %q", body[0])
}

func validate[T any](v *T) error {
	validator, ok := any(v).(Validator)
	if !ok {
		return nil
	}
	if err := validator.Validate(); err != nil {
		return apierror.Wrap(apierror.KindValidation, "invalid response data", err)
	}
	return nil
}

func decodeError(resp *Response, err error) *apierror.Error {
	return &apierror.Error{
		Kind:       apierror.KindValidation,
		Message:    "decode response",
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Err:        err,
	}
}
