package allocator

import "testing"

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name string
		w    word
		want class
	}{
		{"fixed-1 tag", 0x01, classFixed1},
		{"fixed-1 with high bits", 0xFE01, classFixed1},
		{"fixed-8 tag", 0x02, classFixed8},
		{"fixed-4 tag", 0x04, classFixed4},
		{"fixed-2 tag", 0x0C, classFixed2},
		{"variable tag", 0x00, classVariable},
		{"fixed-1 wins over fixed-8 pattern", 0x03 | 0x01, classFixed1},
		{"worked example 0x19", 0x19, classFixed1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.w); got != tc.want {
				t.Fatalf("classify(0x%x) = %s, want %s", tc.w, got, tc.want)
			}
		})
	}
}

func TestClassifyNeverReturnsNoClass(t *testing.T) {
	// Invariant 4: every word must classify as something in the closed set.
	for w := 0; w < 256; w++ {
		c := classify(word(w))
		switch c {
		case classFixed1, classFixed8, classFixed4, classFixed2, classVariable:
		default:
			t.Fatalf("classify(0x%x) returned an unrecognized class %v", w, c)
		}
	}
}

func TestFixedClassBitmapWidthsMatchUserBytes(t *testing.T) {
	for _, fc := range fixedClasses {
		if fc.stride*uintptr(fc.slots) != fc.userBytes {
			t.Errorf("%s: stride*slots = %d, want userBytes %d", fc.class, fc.stride*uintptr(fc.slots), fc.userBytes)
		}
	}
}

func TestBestFixedClassBoundaries(t *testing.T) {
	cases := []struct {
		size uintptr
		want class
	}{
		{1, classFixed1},
		{2, classFixed2},
		{4, classFixed4},
		{7, classFixed8}, // no stride between 2 and 8 covers 7 bytes
		{8, classFixed8},
	}

	for _, tc := range cases {
		fc, ok := bestFixedClass(tc.size)
		if !ok {
			t.Fatalf("bestFixedClass(%d): no class found", tc.size)
		}

		if fc.class != tc.want {
			t.Errorf("bestFixedClass(%d) = %s, want %s", tc.size, fc.class, tc.want)
		}
	}
}

func TestBestFixedClassMissAboveLargestStride(t *testing.T) {
	if _, ok := bestFixedClass(9); ok {
		t.Fatal("expected no fixed class to cover a 9-byte request")
	}
}
