package core

import (
	"reflect"
	"testing"
)

func TestEvaluateThresholds(t *testing.T) {
	limit := Money{Paise: 100000}
	th := DefaultThresholds() // 80 / 95

	cases := []struct {
		name string
		prev int64
		cur  int64
		want []AlertLevel
	}{
		{"below everything", 0, 50000, nil},
		{"crosses warning", 79000, 80000, []AlertLevel{LevelWarning}},
		{"lands exactly on warning", 79999, 80000, []AlertLevel{LevelWarning}},
		{"already past warning stays silent", 81000, 90000, nil},
		{"crosses critical only", 90000, 96000, []AlertLevel{LevelCritical}},
		{"reaches limit exactly", 96000, 100000, nil},
		{"exceeds from exactly at limit", 100000, 100001, []AlertLevel{LevelExceeded}},
		{"crosses critical and exceeded", 90000, 101000, []AlertLevel{LevelCritical, LevelExceeded}},
		{"one delta crosses all three", 10000, 120000, []AlertLevel{LevelWarning, LevelCritical, LevelExceeded}},
		{"already exceeded stays silent", 110000, 120000, nil},
		{"no increase", 80000, 80000, nil},
		{"decrease", 90000, 70000, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateThresholds(limit, th, Money{Paise: tc.prev}, Money{Paise: tc.cur})
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEvaluateThresholdsZeroLimit(t *testing.T) {
	for _, limit := range []int64{0, -100} {
		got := EvaluateThresholds(Money{Paise: limit}, DefaultThresholds(), Money{}, Money{Paise: 1000000})
		if got != nil {
			t.Fatalf("limit %d must never fire, got %v", limit, got)
		}
	}
}

func TestEvaluateThresholdsFractionalPoint(t *testing.T) {
	// 80% of 125 paise is 100 paise exactly, but 95% is 118.75: the
	// trigger point must not be truncated to 118.
	limit := Money{Paise: 125}
	got := EvaluateThresholds(limit, DefaultThresholds(), Money{Paise: 118}, Money{Paise: 119})
	if !reflect.DeepEqual(got, []AlertLevel{LevelCritical}) {
		t.Fatalf("expected critical at 119, got %v", got)
	}
	got = EvaluateThresholds(limit, DefaultThresholds(), Money{Paise: 117}, Money{Paise: 118})
	if got != nil {
		t.Fatalf("118 is below the 118.75 point, got %v", got)
	}
}

func TestEvaluateThresholdsDisabledStep(t *testing.T) {
	// A zero percentage disables that step instead of firing at zero spend.
	th := AlertThresholds{Warning: 0, Critical: 95}
	got := EvaluateThresholds(Money{Paise: 100000}, th, Money{}, Money{Paise: 50000})
	if got != nil {
		t.Fatalf("disabled warning must not fire, got %v", got)
	}
}
