package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeRoundsToCents(t *testing.T) {
	got := Normalize(decimal.RequireFromString("3.335"))
	if !got.Equal(decimal.RequireFromString("3.34")) {
		t.Fatalf("expected 3.34, got %s", got)
	}
}

func TestAbs(t *testing.T) {
	if got := Abs(MustParse("-12.50")); !got.Equal(MustParse("12.50")) {
		t.Fatalf("expected 12.50, got %s", got)
	}
}

func TestMinAndSum(t *testing.T) {
	if got := Min(MustParse("4.00"), MustParse("3.99")); !got.Equal(MustParse("3.99")) {
		t.Fatalf("expected 3.99, got %s", got)
	}
	if got := Sum(MustParse("0.10"), MustParse("0.20"), MustParse("0.30")); !got.Equal(MustParse("0.60")) {
		t.Fatalf("expected exact 0.60, got %s", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("ten"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestString(t *testing.T) {
	if got := String(MustParse("5")); got != "5.00" {
		t.Fatalf("expected 5.00, got %s", got)
	}
}
