package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/")
	if p.Limit != DefaultLimit || p.Page != 1 || p.Offset != 0 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := paramsFor("/?page=3&limit=10")
	if p.Page != 3 || p.Limit != 10 || p.Offset != 20 {
		t.Errorf("unexpected params: %+v", p)
	}
}

func TestFromContext_OffsetWins(t *testing.T) {
	p := paramsFor("/?page=9&limit=10&offset=15")
	if p.Offset != 15 || p.Page != 2 {
		t.Errorf("unexpected params: %+v", p)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	tests := []struct {
		target string
		want   Params
	}{
		{"/?limit=500", Params{Page: 1, Limit: MaxLimit, Offset: 0}},
		{"/?limit=-1&page=-4", Params{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"/?limit=abc&page=xyz", Params{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"/?offset=-10", Params{Page: 1, Limit: DefaultLimit, Offset: 0}},
	}
	for _, tt := range tests {
		if got := paramsFor(tt.target); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.target, got, tt.want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	p := Params{Page: 2, Limit: 10, Offset: 10}
	resp := NewResponse([]string{"a"}, 25, p)
	if resp.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", resp.TotalPages)
	}
	if !resp.HasMore {
		t.Error("expected has_more on page 2 of 3")
	}

	last := NewResponse(nil, 25, Params{Page: 3, Limit: 10, Offset: 20})
	if last.HasMore {
		t.Error("expected no more results on last page")
	}

	empty := NewResponse(nil, 0, Params{Page: 1, Limit: 10})
	if empty.TotalPages != 0 || empty.HasMore {
		t.Errorf("unexpected empty response: %+v", empty)
	}
}
