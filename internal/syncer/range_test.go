package syncer

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{
			name: "split with remainder",
			from: 100, to: 105, batchSize: 2,
			want: []BlockRange{{From: 100, To: 101}, {From: 102, To: 103}, {From: 104, To: 105}},
		},
		{
			name: "range smaller than batch",
			from: 5, to: 5, batchSize: 10,
			want: []BlockRange{{From: 5, To: 5}},
		},
		{
			name: "exact multiple",
			from: 1, to: 6, batchSize: 3,
			want: []BlockRange{{From: 1, To: 3}, {From: 4, To: 6}},
		},
	}

	for _, tc := range cases {
		got, err := SplitRange(tc.from, tc.to, tc.batchSize)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: ranges mismatch: %+v != %+v", tc.name, got, tc.want)
		}
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}
