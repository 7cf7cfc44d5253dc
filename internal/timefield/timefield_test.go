package timefield

import "testing"

const (
	minutesLen = 60
	hoursLen   = 24
	daysLen    = 31
	monthsLen  = 12
)

func TestCompile_Star(t *testing.T) {
	values, star, ok := Compile("*", minutesLen, false, Identity)
	if !ok || !star || values != nil {
		t.Fatalf("Compile(*) = %v, %v, %v", values, star, ok)
	}
}

func TestCompile_SingleValue(t *testing.T) {
	values, star, ok := Compile("5", hoursLen, false, Identity)
	if !ok || star {
		t.Fatalf("unexpected star/ok: %v %v", star, ok)
	}
	if len(values) != 1 || values[0] != 5 {
		t.Fatalf("values = %v", values)
	}
}

func TestCompile_DayOneBased(t *testing.T) {
	values, _, ok := Compile("1", daysLen, true, Identity)
	if !ok || len(values) != 1 || values[0] != 1 {
		t.Fatalf("values = %v ok=%v", values, ok)
	}
}

func TestCompile_Range(t *testing.T) {
	values, _, ok := Compile("1-3", minutesLen, false, Identity)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []int{1, 2, 3}
	if !intsEqual(values, want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
}

func TestCompile_Step(t *testing.T) {
	values, _, ok := Compile("*/15", minutesLen, false, Identity)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []int{0, 15, 30, 45}
	if !intsEqual(values, want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
}

func TestCompile_CommaList(t *testing.T) {
	values, _, ok := Compile("1,4,7,10", monthsLen, true, Month)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []int{1, 4, 7, 10}
	if !intsEqual(values, want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
}

func TestCompile_WeekdayRange(t *testing.T) {
	values, _, ok := Compile("mon-wed", 7, false, Weekday)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []int{1, 2, 3}
	if !intsEqual(values, want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
}

func TestCompile_MalformedYieldsNotOK(t *testing.T) {
	if _, _, ok := Compile("7-abc", hoursLen, false, Identity); ok {
		t.Fatal("expected parse failure")
	}
	if _, _, ok := Compile("1/2/3", minutesLen, false, Identity); ok {
		t.Fatal("expected parse failure for doubled step separator")
	}
}

// TestMonthMap_OctFallsThroughToInteger pins the upstream quirk (spec §9
// Open Question 1): the month name table has no "oct" entry, so "oct"
// is neither a valid integer nor a recognised three-letter name.
func TestMonthMap_OctFallsThroughToInteger(t *testing.T) {
	if _, ok := Month("oct"); ok {
		t.Fatal("expected \"oct\" to fail to resolve, preserving the upstream gap")
	}
	if _, ok := Month("sep"); !ok {
		t.Fatal("sep should resolve")
	}
	if _, ok := Month("nov"); !ok {
		t.Fatal("nov should resolve")
	}
}

func TestWeekday_ZeroAndSevenBothSunday(t *testing.T) {
	z, ok := Weekday("0")
	if !ok || z != 0 {
		t.Fatalf("Weekday(0) = %v, %v", z, ok)
	}
	s, ok := Weekday("7")
	if !ok || s != 0 {
		t.Fatalf("Weekday(7) = %v, %v", s, ok)
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
