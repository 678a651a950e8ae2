package notes

import (
	"fmt"
	"strings"
	"testing"

	"github.com/woodshedhq/woodshed/internal/apperr"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple title", input: "Practice Log", expected: "practice-log"},
		{name: "already normalized", input: "practice-log", expected: "practice-log"},
		{name: "punctuation runs collapse", input: "C Major -- Scales!!", expected: "c-major-scales"},
		{name: "leading and trailing junk", input: "  ~Warm Ups~  ", expected: "warm-ups"},
		{name: "uppercase folded", input: "MiXeD CaSe", expected: "mixed-case"},
		{name: "digits preserved", input: "12 Bar Blues", expected: "12-bar-blues"},
		{name: "only junk", input: "!!!???", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.input); got != tc.expected {
				t.Fatalf("Slugify(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSlugifyTruncatesLongInput(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := Slugify(long)
	if len(got) != 220 {
		t.Fatalf("expected 220 characters, got %d", len(got))
	}

	// A hyphen landing on the cut boundary must not survive as a trailing hyphen.
	boundary := strings.Repeat("a", 219) + " " + strings.Repeat("b", 40)
	got = Slugify(boundary)
	if strings.HasSuffix(got, "-") {
		t.Fatalf("expected trailing hyphen to be trimmed, got %q", got)
	}
}

func TestAllocateSlugReturnsBaseWhenFree(t *testing.T) {
	db := newTestDB(t)
	seedWorkspace(t, db, "ws-1", "user-1")

	slug, err := allocateSlug(db, "ws-1", "Practice Log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug != "practice-log" {
		t.Fatalf("unexpected slug: %q", slug)
	}
}

func TestAllocateSlugProbesNumericSuffixes(t *testing.T) {
	db := newTestDB(t)
	seedWorkspace(t, db, "ws-1", "user-1")
	seedNote(t, db, "ws-1", "note-1", "Practice Log", "practice-log")
	seedNote(t, db, "ws-1", "note-2", "Practice Log", "practice-log-2")

	slug, err := allocateSlug(db, "ws-1", "Practice Log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug != "practice-log-3" {
		t.Fatalf("unexpected slug: %q", slug)
	}
}

func TestAllocateSlugIgnoresOtherWorkspaces(t *testing.T) {
	db := newTestDB(t)
	seedWorkspace(t, db, "ws-1", "user-1")
	seedWorkspace(t, db, "ws-2", "user-1")
	seedNote(t, db, "ws-2", "note-1", "Intro", "intro")

	slug, err := allocateSlug(db, "ws-1", "Intro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug != "intro" {
		t.Fatalf("expected the other workspace's slug to be invisible, got %q", slug)
	}
}

func TestAllocateSlugRejectsEmptyNormalization(t *testing.T) {
	db := newTestDB(t)
	seedWorkspace(t, db, "ws-1", "user-1")

	_, err := allocateSlug(db, "ws-1", "!!!")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", apperr.KindOf(err))
	}
}

func TestAllocateSlugExhaustsAttemptBudget(t *testing.T) {
	db := newTestDB(t)
	seedWorkspace(t, db, "ws-1", "user-1")
	seedNote(t, db, "ws-1", "note-0", "Riff", "riff")
	for i := 2; i <= maxSlugAttempts; i++ {
		seedNote(t, db, "ws-1", fmt.Sprintf("note-%d", i), "Riff", fmt.Sprintf("riff-%d", i))
	}

	_, err := allocateSlug(db, "ws-1", "Riff")
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict kind, got %v", apperr.KindOf(err))
	}
}
