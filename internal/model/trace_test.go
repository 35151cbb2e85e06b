package model

import (
	"reflect"
	"testing"
)

func TestUsage(t *testing.T) {
	tr := &Trace{Quantifiers: []Quantifier{
		{Name: "ax", Instantiations: 1},
		{Name: "unused"},
		{Name: "ax_fg", Instantiations: 3},
		{Name: "ax", Instantiations: 1},
		{Name: "ax_pq", Instantiations: 2},
	}}
	want := []QuantUsage{
		{Name: "ax_fg", Instantiations: 3},
		{Name: "ax", Instantiations: 2},
		{Name: "ax_pq", Instantiations: 2},
	}
	if got := tr.Usage(); !reflect.DeepEqual(got, want) {
		t.Errorf("Usage = %+v, want %+v", got, want)
	}
}
