package primitives

import "testing"

func TestMemberIDValid(t *testing.T) {
	if InvalidMemberID.Valid() {
		t.Errorf("InvalidMemberID reported valid")
	}
	if !MemberID(1).Valid() {
		t.Errorf("id 1 reported invalid")
	}
}

func TestMemberIDString(t *testing.T) {
	if got := MemberID(42).String(); got != "42" {
		t.Errorf("String() = %q, want %q", got, "42")
	}
	if got := InvalidMemberID.String(); got != "0" {
		t.Errorf("invalid String() = %q, want %q", got, "0")
	}
}
