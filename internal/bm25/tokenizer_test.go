package bm25

import (
	"reflect"
	"testing"
)

func TestTokenizeLowercasesAndSplitsOnPunctuation(t *testing.T) {
	got := Tokenize("Hello, World! It's a test.")
	want := []string{"hello", "world", "it", "s", "a", "test"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeTreatsCJKAsSingleCharacterTokens(t *testing.T) {
	got := Tokenize("你好世界 hello")
	want := []string{"你", "好", "世", "界", "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	got := Tokenize("")
	if len(got) != 0 {
		t.Fatalf("expected no tokens for empty input, got %v", got)
	}
}

func TestTokenizeHasNoStopwordFiltering(t *testing.T) {
	got := Tokenize("the a an of")
	want := []string{"the", "a", "an", "of"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected every token kept (no stopword list), got %v", got)
	}
}
