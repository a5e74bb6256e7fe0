package sanitize

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestCleanPassesPlainText(t *testing.T) {
	out, err := Clean("Hello, world!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello, world!" {
		t.Fatalf("expected unchanged text, got %q", out)
	}
}

func TestCleanStripsDirectionalOverride(t *testing.T) {
	out, err := Clean("Hello‮world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Helloworld" {
		t.Fatalf("expected %q, got %q", "Helloworld", out)
	}
}

func TestCleanStripsZeroWidthAndBOM(t *testing.T) {
	out, err := Clean("\uFEFFa​b‌c‍d⁠e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "abcde" {
		t.Fatalf("expected %q, got %q", "abcde", out)
	}
}

func TestCleanStripsCombiningMarks(t *testing.T) {
	// q has no precomposed form with combining acute, so the mark is dropped.
	out, err := Clean("q́")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "q" {
		t.Fatalf("expected %q, got %q", "q", out)
	}
}

func TestCleanKeepsPrecomposedAccents(t *testing.T) {
	// e + combining acute composes to é under NFKC before mark stripping.
	out, err := Clean("café")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "café" {
		t.Fatalf("expected %q, got %q", "café", out)
	}
}

func TestCleanAppliesCompatibilityNormalization(t *testing.T) {
	out, err := Clean("x²") // superscript two
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "x2" {
		t.Fatalf("expected %q, got %q", "x2", out)
	}
}

func TestCleanRejectsEmptyInput(t *testing.T) {
	if _, err := Clean(""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestCleanRejectsWhitespaceOnly(t *testing.T) {
	if _, err := Clean("   \t\n "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestCleanRejectsInvisibleOnlyInput(t *testing.T) {
	if _, err := Clean("​‮\uFEFF‍"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

// TestCleanIdempotent verifies that sanitization is a fixpoint: cleaning an
// already-clean string changes nothing.
func TestCleanIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.String().Draw(t, "input")

		first, err := Clean(input)
		if err != nil {
			// Inputs that reduce to nothing are rejected, not coerced.
			if !errors.Is(err, ErrEmpty) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}

		second, err := Clean(first)
		if err != nil {
			t.Fatalf("second pass failed on %q: %v", first, err)
		}
		if second != first {
			t.Fatalf("not idempotent: %q -> %q", first, second)
		}
	})
}
