package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONErrorMessage(rr, http.StatusConflict, "invalid_transition", "Transition interdite", map[string]string{"from": "paid"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	want := `{"error":"invalid_transition","details":{"from":"paid"},"message":"Transition interdite"}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body = %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	cases := []struct {
		body string
		ok   bool
	}{
		{`{"name":"a"}`, true},
		{`{"name":`, false},
		{`{"other":1}`, false},
		{`{"name":"a"} {}`, false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(c.body))
		err := DecodeJSON(r, &dst)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.body, err)
		}
		if !c.ok && !errors.Is(err, ErrBadJSON) {
			t.Errorf("%s: expected ErrBadJSON, got %v", c.body, err)
		}
	}
}
