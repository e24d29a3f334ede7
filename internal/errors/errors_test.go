package errors

import "testing"

func TestConstructorsSetCategory(t *testing.T) {
	cases := []struct {
		name string
		err  *HeapError
		want Category
	}{
		{"OutOfMemory", OutOfMemory(128), CategoryOOM},
		{"Corruption", Corruption("bad tag byte", 0x1000), CategoryCorruption},
		{"Contention", Contention("fixed-free", 4), CategoryContention},
		{"InvalidAlignment", InvalidAlignment(1024, 512), CategoryInvalidAlignment},
		{"InvalidSize", InvalidSize(0, "allocate"), CategoryInvalidSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Category != tc.want {
				t.Fatalf("category = %s, want %s", tc.err.Category, tc.want)
			}

			if tc.err.Caller == "" || tc.err.Caller == "unknown" {
				t.Fatalf("expected a captured caller, got %q", tc.err.Caller)
			}

			if tc.err.Error() == "" {
				t.Fatal("Error() returned empty string")
			}
		})
	}
}

func TestIsCorruptionAndIsOutOfMemory(t *testing.T) {
	if !IsCorruption(Corruption("x", 0)) {
		t.Fatal("expected IsCorruption to recognize a corruption error")
	}

	if IsCorruption(OutOfMemory(8)) {
		t.Fatal("did not expect IsCorruption to recognize an OOM error")
	}

	if !IsOutOfMemory(OutOfMemory(8)) {
		t.Fatal("expected IsOutOfMemory to recognize an OOM error")
	}

	if IsOutOfMemory(Corruption("x", 0)) {
		t.Fatal("did not expect IsOutOfMemory to recognize a corruption error")
	}

	var plain error
	if IsCorruption(plain) || IsOutOfMemory(plain) {
		t.Fatal("nil error should not classify as any category")
	}
}
