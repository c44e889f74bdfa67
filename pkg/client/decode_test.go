package client

import (
	"errors"
	"testing"

	"github.com/Sternrassler/go24so/pkg/apierror"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i item) Validate() error {
	if i.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

func TestDecode(t *testing.T) {
	got, err := Decode[item](&Response{StatusCode: 200, Body: []byte(`{"id":"1","name":"Acme"}`)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.ID != "1" || got.Name != "Acme" {
		t.Errorf("Decode() = %+v", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"id":`},
		{"wrong shape", `[1,2]`},
		{"fails validation", `{"name":"no id"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[item](&Response{StatusCode: 200, Body: []byte(tt.body)})
			if !errors.Is(err, apierror.ErrValidation) {
				t.Errorf("Decode() error = %v, want validation error", err)
			}
		})
	}
}

func TestDecodeList_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{"bare array", `[{"id":"1"},{"id":"2"}]`, []string{"1", "2"}},
		{"data envelope", `{"data":[{"id":"1"},{"id":"2"}],"total":2}`, []string{"1", "2"}},
		{"single object", `{"id":"7","name":"only"}`, []string{"7"}},
		{"empty array", `[]`, []string{}},
		{"null data", `{"data":null}`, []string{}},
		{"empty body", ``, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := DecodeList[item](&Response{StatusCode: 200, Body: []byte(tt.body)})
			if err != nil {
				t.Fatalf("DecodeList() error = %v", err)
			}
			if len(items) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(items), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if items[i].ID != id {
					t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
				}
			}
		})
	}
}

// The same records decode identically whether wrapped in data or not.
func TestDecodeList_EnvelopeEquivalence(t *testing.T) {
	bare, err := DecodeList[item](&Response{Body: []byte(`[{"id":"1","name":"a"},{"id":"2","name":"b"}]`)})
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := DecodeList[item](&Response{Body: []byte(`{"data":[{"id":"1","name":"a"},{"id":"2","name":"b"}]}`)})
	if err != nil {
		t.Fatal(err)
	}
	if len(bare) != len(wrapped) {
		t.Fatalf("lengths differ: %d vs %d", len(bare), len(wrapped))
	}
	for i := range bare {
		if bare[i] != wrapped[i] {
			t.Errorf("item %d: %+v vs %+v", i, bare[i], wrapped[i])
		}
	}
}

func TestDecodeList_ValidationFailure(t *testing.T) {
	_, err := DecodeList[item](&Response{Body: []byte(`[{"id":"1"},{"name":"missing id"}]`)})
	if apierror.KindOf(err) != apierror.KindValidation {
		t.Errorf("DecodeList() error = %v, want validation error", err)
	}
}

func TestDecodeList_Malformed(t *testing.T) {
	for _, body := range []string{`[{"id":`, `"text"`, `42`} {
		if _, err := DecodeList[item](&Response{Body: []byte(body)}); !errors.Is(err, apierror.ErrValidation) {
			t.Errorf("DecodeList(%s) error = %v, want validation error", body, err)
		}
	}
}
