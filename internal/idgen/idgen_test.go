package idgen

import "testing"

func TestValidatePrefix(t *testing.T) {
	for _, ok := range []string{"br", "bd", "a", "proj1", "a123456789"} {
		if err := ValidatePrefix(ok); err != nil {
			t.Errorf("ValidatePrefix(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"", "BR", "1br", "-br", "toolongprefix", "br_x"} {
		if err := ValidatePrefix(bad); err == nil {
			t.Errorf("ValidatePrefix(%q) = nil, want error", bad)
		}
	}
}

func TestIsValidID(t *testing.T) {
	for _, ok := range []string{"br-001", "bd-a3f", "br-001.1", "br-001.1.2", "proj1-zzz9"} {
		if !IsValidID(ok) {
			t.Errorf("IsValidID(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"br-", "-001", "BR-001", "br-ABC", "br", "br-00_1"} {
		if IsValidID(bad) {
			t.Errorf("IsValidID(%q) = true, want false", bad)
		}
	}
}

func TestWidthForCount(t *testing.T) {
	cases := []struct {
		count int
		want  int
	}{
		{0, 3},
		{100, 3},
		{37324, 3},     // just under 80% of 36^3 (46656*0.8 = 37324.8)
		{37325, 4},     // at the threshold
		{46656, 4},     // a full 36^3 space
		{1343692, 4},   // just under 80% of 36^4
		{1343693, 5},
	}
	for _, tc := range cases {
		if got := WidthForCount(tc.count); got != tc.want {
			t.Errorf("WidthForCount(%d) = %d, want %d", tc.count, got, tc.want)
		}
	}
}

func TestFormatSuffix(t *testing.T) {
	cases := []struct {
		n     int64
		width int
		want  string
	}{
		{1, 3, "001"},
		{35, 3, "00z"},
		{36, 3, "010"},
		{46655, 3, "zzz"},
		{46656, 3, "1000"}, // overflows the width rather than truncating
	}
	for _, tc := range cases {
		if got := FormatSuffix(tc.n, tc.width); got != tc.want {
			t.Errorf("FormatSuffix(%d, %d) = %q, want %q", tc.n, tc.width, got, tc.want)
		}
	}
}

func TestParentIDAndDepth(t *testing.T) {
	if ParentID("br-001") != "" {
		t.Error("top-level ID has no parent")
	}
	if ParentID("br-001.1") != "br-001" {
		t.Error("child parent should be br-001")
	}
	if ParentID("br-001.1.2") != "br-001.1" {
		t.Error("grandchild parent should be br-001.1")
	}
	if Depth("br-001") != 0 || Depth("br-001.1") != 1 || Depth("br-001.1.2") != 2 {
		t.Error("depth is the count of dots in the suffix")
	}
	if ChildID("br-001", 3) != "br-001.3" {
		t.Error("child ID format")
	}
}

func TestResolve(t *testing.T) {
	known := []string{"br-001", "br-002", "br-010", "br-0abc"}

	res := Resolve("br-001", "br", known)
	if res.Match != MatchExact || res.ID != "br-001" {
		t.Errorf("full ID: got %+v", res)
	}

	// Bare suffix gets the workspace prefix.
	res = Resolve("002", "br", known)
	if res.Match != MatchExact || res.ID != "br-002" {
		t.Errorf("bare suffix: got %+v", res)
	}

	// Unique prefix.
	res = Resolve("br-0a", "br", known)
	if res.Match != MatchUniquePrefix || res.ID != "br-0abc" {
		t.Errorf("unique prefix: got %+v", res)
	}

	// Ambiguous prefix returns candidates.
	res = Resolve("br-0", "br", known)
	if res.Match != MatchAmbiguous || len(res.Candidates) != 4 {
		t.Errorf("ambiguous prefix: got %+v", res)
	}

	// Case-insensitive with whitespace.
	res = Resolve("  BR-001  ", "br", known)
	if res.Match != MatchExact || res.ID != "br-001" {
		t.Errorf("case/whitespace: got %+v", res)
	}

	res = Resolve("zz-999", "br", known)
	if res.Match != MatchNotFound {
		t.Errorf("unknown: got %+v", res)
	}
}
