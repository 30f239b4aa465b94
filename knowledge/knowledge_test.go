package knowledge

import (
	"errors"
	"testing"
)

func TestParsePromotionLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PromotionLevel
		wantOK  bool
	}{
		{"standard", "standard", PromotionStandard, true},
		{"important", "important", PromotionImportant, true},
		{"critical", "critical", PromotionCritical, true},
		{"empty defaults to standard", "", PromotionStandard, false},
		{"malformed defaults to standard", "urgent", PromotionStandard, false},
		{"case sensitive", "Critical", PromotionStandard, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePromotionLevel(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParsePromotionLevel(%q) = (%v, %v), want (%v, %v)",
					tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPromotionLevel_AtLeast(t *testing.T) {
	tests := []struct {
		level PromotionLevel
		floor PromotionLevel
		want  bool
	}{
		{PromotionCritical, PromotionStandard, true},
		{PromotionCritical, PromotionCritical, true},
		{PromotionImportant, PromotionCritical, false},
		{PromotionStandard, PromotionImportant, false},
		{PromotionStandard, PromotionStandard, true},
		{PromotionLevel("bogus"), PromotionStandard, false},
	}

	for _, tt := range tests {
		if got := tt.level.AtLeast(tt.floor); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.level, tt.floor, got, tt.want)
		}
	}
}

func TestPromotionsAtOrAbove(t *testing.T) {
	got := PromotionsAtOrAbove(PromotionImportant)
	want := []PromotionLevel{PromotionImportant, PromotionCritical}
	if len(got) != len(want) {
		t.Fatalf("PromotionsAtOrAbove(important) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PromotionsAtOrAbove(important)[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRetrievalOptions_Validate(t *testing.T) {
	valid := RetrievalOptions{
		MinRelevanceScore: 0.7,
		MaxResults:        5,
		MaxLinkedDocs:     10,
		MaxLinkDepth:      2,
		MinPromotionLevel: PromotionStandard,
	}

	tests := []struct {
		name    string
		mutate  func(*RetrievalOptions)
		wantErr error
	}{
		{"valid", func(o *RetrievalOptions) {}, nil},
		{"score below range", func(o *RetrievalOptions) { o.MinRelevanceScore = -0.1 }, ErrInvalidMinRelevanceScore},
		{"score above range", func(o *RetrievalOptions) { o.MinRelevanceScore = 1.5 }, ErrInvalidMinRelevanceScore},
		{"zero max results", func(o *RetrievalOptions) { o.MaxResults = 0 }, ErrInvalidMaxResults},
		{"negative linked docs", func(o *RetrievalOptions) { o.MaxLinkedDocs = -1 }, ErrInvalidMaxLinkedDocs},
		{"negative link depth", func(o *RetrievalOptions) { o.MaxLinkDepth = -1 }, ErrInvalidMaxLinkDepth},
		{"unknown promotion", func(o *RetrievalOptions) { o.MinPromotionLevel = "urgent" }, ErrInvalidPromotionLevel},
		{"empty promotion allowed", func(o *RetrievalOptions) { o.MinPromotionLevel = "" }, nil},
		{"boundary scores", func(o *RetrievalOptions) { o.MinRelevanceScore = 1.0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
