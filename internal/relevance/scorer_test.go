package relevance

import "testing"

func TestScoreEmptyInput(t *testing.T) {
	if got := Score(Input{}, nil); got != 0 {
		t.Errorf("Score(empty) = %v, want 0", got)
	}
}

func TestScoreRange(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"irrelevant", Input{Title: "A study of bird migration patterns", Abstract: "Birds fly south in winter."}},
		{"relevant", Input{
			Title:    "Cannabinoid extraction and formulation stability",
			Abstract: "We examine terpene bioavailability, cannabis extract potency, and dosage delivery in pharmaceutical formulation.",
			Keywords: []string{"cannabis", "formulation", "terpene"},
		}},
		{"saturated", Input{
			Title: "cannabis cannabinoid terpene formulation extraction stability bioavailability dosage delivery pharmaceutical purification distillation concentration potency cbd thc",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in, []string{"Cannabis Formulation"})
			if got < 0 || got > 1 {
				t.Errorf("Score = %v, want within [0,1]", got)
			}
		})
	}
}

func TestScoreRelevantBeatsIrrelevant(t *testing.T) {
	cats := []string{"Cannabis Formulation"}
	relevant := Score(Input{
		Title:    "Cannabinoid extraction and formulation stability",
		Abstract: "Terpene bioavailability and cannabis extract potency in dosage delivery.",
	}, cats)
	irrelevant := Score(Input{
		Title:    "A study of bird migration patterns",
		Abstract: "Birds fly south in winter when food is scarce.",
	}, cats)

	if relevant <= irrelevant {
		t.Errorf("relevant score %v not greater than irrelevant score %v", relevant, irrelevant)
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := Input{
		Title:    "Predictors of Response to Cannabis Formulations",
		Abstract: "Cannabinoid and terpene content predict therapeutic outcomes.",
		Keywords: []string{"cannabis", "cbd"},
	}
	cats := []string{"Cannabis Formulation"}

	first := Score(in, cats)
	for i := 0; i < 5; i++ {
		if got := Score(in, cats); got != first {
			t.Fatalf("Score not deterministic: %v vs %v", got, first)
		}
	}
	if first <= 0 {
		t.Errorf("Score = %v, want > 0 for relevant text", first)
	}
}

func TestScoreCategoryTermsCount(t *testing.T) {
	in := Input{Title: "Microemulsion systems for oral delivery of curcumin"}

	without := Score(in, nil)
	with := Score(in, []string{"Microemulsion Delivery"})
	if with <= without {
		t.Errorf("category terms did not raise score: with=%v without=%v", with, without)
	}
}

func TestScoreRescoringMayLower(t *testing.T) {
	// A dense abstract diluted by a long, off-topic full text may score
	// lower on re-scoring. The engine keeps the most recent score either way.
	abstractOnly := Input{
		Title:    "Cannabinoid formulation stability",
		Abstract: "Cannabis extract potency and terpene stability.",
	}
	longBody := abstractOnly
	for i := 0; i < 200; i++ {
		longBody.Body += "unrelated filler words about general laboratory procedure and equipment "
	}

	if Score(longBody, nil) >= Score(abstractOnly, nil) {
		t.Error("expected dilution by off-topic body text to lower the score")
	}
}
