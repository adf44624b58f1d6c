package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination(t *testing.T) {
	cases := []struct {
		name                 string
		page, perPage, total int
		wantPage, wantPages  int
		wantStart, wantEnd   int
		prev, next           bool
	}{
		{name: "first page", page: 1, perPage: 2, total: 5, wantPage: 1, wantPages: 3, wantStart: 0, wantEnd: 2, next: true},
		{name: "last partial page", page: 3, perPage: 2, total: 5, wantPage: 3, wantPages: 3, wantStart: 4, wantEnd: 5, prev: true},
		{name: "page past end clamps", page: 9, perPage: 2, total: 5, wantPage: 3, wantPages: 3, wantStart: 4, wantEnd: 5, prev: true},
		{name: "zero page clamps", page: 0, perPage: 2, total: 5, wantPage: 1, wantPages: 3, wantStart: 0, wantEnd: 2, next: true},
		{name: "empty list", page: 1, perPage: 20, total: 0, wantPage: 1, wantPages: 0, wantStart: 0, wantEnd: 0},
		{name: "default page size", page: 1, perPage: 0, total: 3, wantPage: 1, wantPages: 1, wantStart: 0, wantEnd: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPagination(tc.page, tc.perPage, tc.total)
			start, end := p.Bounds()
			assert.Equal(t, tc.wantPage, p.Page)
			assert.Equal(t, tc.wantPages, p.TotalPages)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
			assert.Equal(t, tc.prev, p.HasPrev())
			assert.Equal(t, tc.next, p.HasNext())
		})
	}
}
