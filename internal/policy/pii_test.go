package policy

import (
	"strings"
	"testing"
)

func TestMaskerRedactsCommonPatterns(t *testing.T) {
	masker := NewMasker(true)

	cases := []struct {
		name     string
		input    string
		contains string
		leaked   string
	}{
		{"email", "can you mail jane.doe@example.com the invoice", "[email_redacted]", "jane.doe@example.com"},
		{"card", "charge 4111 1111 1111 1234 again", "**** **** **** 1234", "4111 1111"},
		{"cpf", "my cpf is 123.456.789-09", "***.***.***-**", "123.456.789-09"},
		{"phone", "call me at +1 415 555 0100 please", "[phone_redacted]", "415 555"},
		{"phone with country code", "meu numero e +55 11 3456-7890", "[phone_redacted]", "3456-7890"},
		{"phone with area code", "ring (415) 555-0100 tomorrow", "[phone_redacted]", "555-0100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := masker.Mask(tc.input)
			if !strings.Contains(got, tc.contains) {
				t.Fatalf("expected %q in %q", tc.contains, got)
			}
			if strings.Contains(got, tc.leaked) {
				t.Fatalf("expected %q to be masked, got %q", tc.leaked, got)
			}
		})
	}
}

func TestMaskerLeavesPlainQuestionsAlone(t *testing.T) {
	masker := NewMasker(true)
	input := "How do I reset my password?"
	if got := masker.Mask(input); got != input {
		t.Fatalf("expected unchanged question, got %q", got)
	}
}

func TestMaskerKeepsTechnicalNumbers(t *testing.T) {
	masker := NewMasker(true)
	inputs := []string{
		"Why did my order from 2024-05-10 fail?",
		"Does build 10.4.2.1187 support SSO?",
		"Is build 11.0.0.1 out yet?",
		"What does error 404-500-1234 mean?",
		"Can I upgrade from v2.14.3 to 3.0.0?",
	}
	for _, input := range inputs {
		if got := masker.Mask(input); got != input {
			t.Fatalf("expected %q unchanged, got %q", input, got)
		}
	}
}

func TestDisabledMaskerIsPassthrough(t *testing.T) {
	masker := NewMasker(false)
	input := []string{"mail me at a@b.co"}
	got := masker.MaskAll(input)
	if got[0] != input[0] {
		t.Fatalf("expected passthrough, got %q", got[0])
	}

	var nilMasker *Masker
	if nilMasker.Mask("a@b.co") != "a@b.co" {
		t.Fatalf("expected nil masker to pass through")
	}
}

func TestMaskAllDoesNotMutateInput(t *testing.T) {
	masker := NewMasker(true)
	input := []string{"write to ops@example.org"}
	out := masker.MaskAll(input)
	if input[0] != "write to ops@example.org" {
		t.Fatalf("input mutated: %q", input[0])
	}
	if out[0] != "write to [email_redacted]" {
		t.Fatalf("unexpected masked output %q", out[0])
	}
}
