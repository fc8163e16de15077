package mapreduce

import (
	"reflect"
	"testing"

	"github.com/alexis-pagnon/green-optimizer/models"
)

func snapshot(resources ...models.ResourceSummary) models.PageSnapshot {
	return models.PageSnapshot{Resources: resources}
}

func TestMapReduce(t *testing.T) {
	a := Map(snapshot(
		models.ResourceSummary{URL: "https://example.com/", Bytes: 1000},
		models.ResourceSummary{URL: "https://cdn.example.net/app.js", Bytes: 5000},
		models.ResourceSummary{URL: "https://CDN.example.net/app.css", Bytes: 2000},
		models.ResourceSummary{URL: "https://ads.example.org/pixel", Failed: true},
	))
	want := map[string]int64{"example.com": 1000, "cdn.example.net": 7000}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("Map() = %v, want %v", a, want)
	}

	b := Map(snapshot(
		models.ResourceSummary{URL: "https://cdn.example.net/lib.js", Bytes: 3000},
		models.ResourceSummary{URL: "https://fonts.example.io/a.woff2", Bytes: 7000},
	))
	total := Reduce([]map[string]int64{a, b})
	if total["cdn.example.net"] != 10000 || total["fonts.example.io"] != 7000 || total["example.com"] != 1000 {
		t.Errorf("Reduce() = %v", total)
	}

	top := TopHosts(total, 2)
	wantTop := []HostBytes{{"cdn.example.net", 10000}, {"fonts.example.io", 7000}}
	if !reflect.DeepEqual(top, wantTop) {
		t.Errorf("TopHosts() = %v, want %v", top, wantTop)
	}
	if top[0].String() != "cdn.example.net:10000" {
		t.Errorf("String() = %s", top[0].String())
	}
}

func TestTopHosts_Ties(t *testing.T) {
	got := TopHosts(map[string]int64{"b.example": 5, "a.example": 5, "c.example": 1}, 10)
	want := []HostBytes{{"a.example", 5}, {"b.example", 5}, {"c.example", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopHosts() = %v, want %v", got, want)
	}
	if len(TopHosts(nil, 3)) != 0 {
		t.Error("TopHosts(nil) should be empty")
	}
}
