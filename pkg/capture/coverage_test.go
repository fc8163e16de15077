package capture

import "testing"

func TestUnusedBytes(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		ranges []coverageRange
		want   int
	}{
		{name: "nothing painted", total: 100, want: 100},
		{name: "fully used", total: 100, ranges: []coverageRange{{0, 100, true}}, want: 0},
		{
			name:  "nested unused block overrides outer",
			total: 100,
			ranges: []coverageRange{
				{0, 100, true},
				{20, 60, false},
			},
			want: 40,
		},
		{
			name:   "out of range offsets are clipped",
			total:  10,
			ranges: []coverageRange{{-5, 50, true}},
			want:   0,
		},
		{name: "empty file", total: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unusedBytes(tt.total, tt.ranges); got != tt.want {
				t.Errorf("unusedBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMergeCoverage(t *testing.T) {
	files := []FileCoverage{
		{URL: "https://example.com/b.css", Type: "css", TotalBytes: 100, UnusedBytes: 90},
		{URL: "https://example.com/a.js", Type: "js", TotalBytes: 50, UnusedBytes: 10},
		{URL: "https://example.com/a.js", Type: "js", TotalBytes: 50, UnusedBytes: 40},
		{URL: "", Type: "js", TotalBytes: 10, UnusedBytes: 10},
	}

	got := mergeCoverage(files)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].URL != "https://example.com/a.js" || got[0].TotalBytes != 100 || got[0].UnusedBytes != 50 {
		t.Errorf("merged js = %+v", got[0])
	}
	if r := got[1].UnusedRatio(); r < DeadCodeThreshold {
		t.Errorf("css ratio = %v, expected dead code", r)
	}
}

func TestToOffset(t *testing.T) {
	if toOffset(12.9) != 12 || toOffset(7) != 7 || toOffset(int64(3)) != 3 {
		t.Error("toOffset conversions are wrong")
	}
}
