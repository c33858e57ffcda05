package replacement

import "testing"

func TestGetOrCreateStable(t *testing.T) {
	m := New()
	p1 := m.GetOrCreate("john@example.com", "email")
	p2 := m.GetOrCreate("john@example.com", "email")
	if p1 != p2 {
		t.Fatalf("expected stable placeholder, got %q then %q", p1, p2)
	}
	if p1 != "[EMAIL_1]" {
		t.Fatalf("unexpected placeholder label: %q", p1)
	}
}

func TestGetOrCreateSameOriginalDifferentRuleReusesPlaceholder(t *testing.T) {
	m := New()
	p1 := m.GetOrCreate("123-45-6789", "ssn")
	p2 := m.GetOrCreate("123-45-6789", "ssn-context")
	if p1 != p2 {
		t.Fatalf("expected forward map to be single-valued: %q vs %q", p1, p2)
	}
}

func TestGetOrCreateIncrementsPerRuleCounter(t *testing.T) {
	m := New()
	p1 := m.GetOrCreate("a@example.com", "email")
	p2 := m.GetOrCreate("b@example.com", "email")
	if p1 != "[EMAIL_1]" || p2 != "[EMAIL_2]" {
		t.Fatalf("expected sequential counters, got %q %q", p1, p2)
	}
}

func TestRuleLabelNormalization(t *testing.T) {
	m := New()
	p := m.GetOrCreate("1234 5678 9012 3456", "credit-card.number")
	if p != "[CREDIT_CARD_NUMBER_1]" {
		t.Fatalf("unexpected label normalization: %q", p)
	}
}

func TestRehydrateDescendingLength(t *testing.T) {
	m := New()
	// Force [EMAIL_1] through [EMAIL_10] to exist so prefix-clobbering
	// would be observable if ordering were wrong.
	var placeholders []string
	for i := 0; i < 10; i++ {
		placeholders = append(placeholders, m.GetOrCreate(emailFor(i), "email"))
	}
	text := placeholders[0] + " " + placeholders[9]
	got := m.Rehydrate(text)
	want := emailFor(0) + " " + emailFor(9)
	if got != want {
		t.Fatalf("rehydrate mismatch: got %q want %q", got, want)
	}
}

func emailFor(i int) string {
	return string(rune('a'+i)) + "@example.com"
}

func TestRehydrateNoPlaceholdersIsNoop(t *testing.T) {
	m := New()
	text := "nothing to see here"
	if got := m.Rehydrate(text); got != text {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestEmptyFastPath(t *testing.T) {
	m := New()
	if !m.Empty() {
		t.Fatal("expected new map to be empty")
	}
	m.GetOrCreate("x", "rule")
	if m.Empty() {
		t.Fatal("expected non-empty map after insert")
	}
}
