package store

import "testing"

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]bool{
		`pq: duplicate key value violates unique constraint "sent_offer_payment_hash_key"`: true,
		"pq: relation \"item\" does not exist":                                            false,
		"":                                                                                 false,
	}
	for msg, want := range cases {
		got := isUniqueViolation(errString(msg))
		if got != want {
			t.Errorf("isUniqueViolation(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestStringArrayValue(t *testing.T) {
	v, err := stringArray{"sqk1abc", `sqk1"quoted`}.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"sqk1abc","sqk1\"quoted"}`
	if v != want {
		t.Errorf("got %q, want %q", v, want)
	}

	v, err = stringArray{}.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "{}" {
		t.Errorf("got %q, want {}", v)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
