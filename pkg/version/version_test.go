package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.7", 1, 7},
		{"1.0", 1, 0},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major {
				t.Errorf("Major = %d, want %d", v.Major, tt.major)
			}
			if v.Minor != tt.minor {
				t.Errorf("Minor = %d, want %d", v.Minor, tt.minor)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"abc",
		"1.7.0",
		"1.x",
		"-1.0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestProtocolVersion_String(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 7}
	if got := v.String(); got != "1.7" {
		t.Errorf("String() = %q, want %q", got, "1.7")
	}
}

func TestProtocolVersion_Compatible(t *testing.T) {
	v17 := MustParse("1.7")
	if !v17.Compatible(MustParse("1.5")) {
		t.Error("1.7 should be compatible with 1.5")
	}
	if v17.Compatible(MustParse("2.0")) {
		t.Error("1.7 should not be compatible with 2.0")
	}
}

func TestProtocolVersion_Less(t *testing.T) {
	if !MustParse("1.5").Less(MustParse("1.7")) {
		t.Error("1.5 should be less than 1.7")
	}
	if MustParse("2.0").Less(MustParse("1.7")) {
		t.Error("2.0 should not be less than 1.7")
	}
	if MustParse("1.7").Less(MustParse("1.7")) {
		t.Error("a version is not less than itself")
	}
}

func TestCurrentParses(t *testing.T) {
	if _, err := Parse(Current); err != nil {
		t.Fatalf("Current %q does not parse: %v", Current, err)
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse("bogus")
}
