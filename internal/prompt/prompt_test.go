package prompt_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/pranimitra/internal/knowledge"
	"github.com/MrWong99/pranimitra/internal/prompt"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	corpus := []knowledge.Entry{
		{Question: "What is the MSP for wheat?", Answer: "Rs 2,275 per quintal."},
		{Question: "How often should cattle be dewormed?", Answer: "Every three months."},
	}
	got := prompt.Build(prompt.Telugu, prompt.ServiceFarming, corpus)

	for _, want := range []string{
		"You are Prani Mitra, a friendly and helpful AI assistant for Indian farmers. You must respond ONLY in Telugu.",
		"The user has explicitly selected 'Farming' services.",
		"prioritize the Knowledge Base.",
		"---START OF KNOWLEDGE BASE---\nQ: What is the MSP for wheat?\nA: Rs 2,275 per quintal.\n\nQ: How often should cattle be dewormed?\nA: Every three months.\n---END OF KNOWLEDGE BASE---",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Build() missing %q\ngot:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "---END OF KNOWLEDGE BASE---") {
		t.Error("Build() should end with the knowledge base terminator")
	}
}

func TestInstruction_Fallback(t *testing.T) {
	t.Parallel()

	general := prompt.Instruction(prompt.ServiceGeneral)
	if got := prompt.Instruction("Fishing"); got != general {
		t.Errorf("Instruction(unknown) = %q, want general queries instruction", got)
	}
	for _, s := range prompt.Services {
		if prompt.Instruction(s) == "" {
			t.Errorf("Instruction(%q) is empty", s)
		}
	}
	if prompt.Instruction(prompt.ServiceAnimalHealth) == general {
		t.Error("animal health should have its own instruction")
	}
}

func TestFormatCorpus_Empty(t *testing.T) {
	t.Parallel()

	if got := prompt.FormatCorpus(nil); got != "" {
		t.Errorf("FormatCorpus(nil) = %q, want empty", got)
	}
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    prompt.Language
		wantErr bool
	}{
		{in: "Telugu", want: prompt.Telugu},
		{in: "  HINDI ", want: prompt.Hindi},
		{in: "en", want: prompt.English},
		{in: "తెలుగు", want: prompt.Telugu},
		{in: "हिन्दी", want: prompt.Hindi},
		{in: "Telgu", want: prompt.Telugu},
		{in: "Hindee", want: prompt.Hindi},
		{in: "Klingon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := prompt.ParseLanguage(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseLanguage(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLanguage(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseLanguage(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseService(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    prompt.Service
		wantErr bool
	}{
		{in: "Farming", want: prompt.ServiceFarming},
		{in: "animal_health", want: prompt.ServiceAnimalHealth},
		{in: "Government-Schemes", want: prompt.ServiceSchemes},
		{in: "general", want: prompt.ServiceGeneral},
		{in: "farmin", want: prompt.ServiceFarming},
		{in: "astrology", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := prompt.ParseService(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseService(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseService(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseService(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
