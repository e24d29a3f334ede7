package allocator

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := defaultConfig().validate(); err != nil {
		t.Fatalf("defaultConfig().validate() = %v, want nil", err)
	}
}

func TestConfigValidateRejectsZeroMaxHoard(t *testing.T) {
	c := defaultConfig()
	WithMaxHoard(0)(c)

	if err := c.validate(); err == nil {
		t.Fatal("expected validate to reject a zero MaxHoard")
	}
}

func TestConfigValidateRejectsOutOfRangeFuzz(t *testing.T) {
	c := defaultConfig()
	WithPredictorFuzz(PredictorSize)(c)

	if err := c.validate(); err == nil {
		t.Fatal("expected validate to reject a fuzz window at least as wide as the whole histogram")
	}
}

func TestConfigValidateRejectsNilReserver(t *testing.T) {
	c := defaultConfig()
	c.Reserver = nil

	if err := c.validate(); err == nil {
		t.Fatal("expected validate to reject a nil Reserver")
	}
}

func TestCheckCompatAcceptsSatisfiedConstraint(t *testing.T) {
	c := defaultConfig()
	WithMinCompat("^1.0.0")(c)

	if err := c.validate(); err != nil {
		t.Fatalf("checkCompat rejected a satisfied constraint: %v", err)
	}
}

func TestCheckCompatRejectsUnsatisfiedConstraint(t *testing.T) {
	c := defaultConfig()
	WithMinCompat("^2.0.0")(c)

	if err := c.validate(); err == nil {
		t.Fatal("expected checkCompat to reject an unsatisfied major-version constraint")
	}
}

func TestCheckCompatRejectsMalformedConstraint(t *testing.T) {
	c := defaultConfig()
	WithMinCompat("not-a-constraint")(c)

	if err := c.validate(); err == nil {
		t.Fatal("expected checkCompat to reject a malformed constraint string")
	}
}
