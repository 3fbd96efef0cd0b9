package imagesv2

import (
	"context"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// appendAlternates merges a round's candidates into the unit's manifest.
func (e *Engine) appendAlternates(ctx context.Context, internalID string, u Unit, fresh []Alternate) ([]Alternate, error) {
	existing, err := e.loadAlternates(ctx, internalID, u)
	if err != nil {
		return nil, err
	}
	all := append(existing, fresh...)
	if err := e.writeJSON(ctx, AlternatesKey(internalID, u), all); err != nil {
		return nil, err
	}
	return all, nil
}

func (e *Engine) loadAlternates(ctx context.Context, internalID string, u Unit) ([]Alternate, error) {
	key := AlternatesKey(internalID, u)
	ok, err := e.fs.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var alternates []Alternate
	if err := e.readJSON(ctx, key, &alternates); err != nil {
		return nil, err
	}
	return alternates, nil
}

// compositeScore ranks an alternate for promotion: evaluation score plus the
// community's net human votes plus the synthesised AI votes.
func compositeScore(alt Alternate, human, aiVotes map[[2]int]int) float64 {
	key := [2]int{alt.DescriptionIndex, alt.ImageIndex}
	return float64(alt.Score) + float64(human[key]) + float64(aiVotes[key])
}

// bestDescription picks the description whose non-error images average the
// highest evaluation score. Only descriptions with at least one alternate
// qualify; ties break toward the most recent round.
func bestDescription(alternates []Alternate) int {
	sums := map[int]float64{}
	counts := map[int]int{}
	for _, alt := range alternates {
		sums[alt.DescriptionIndex] += float64(alt.Score)
		counts[alt.DescriptionIndex]++
	}
	best := -1
	var bestAvg float64
	for idx, n := range counts {
		avg := sums[idx] / float64(n)
		if best < 0 || avg > bestAvg || (avg == bestAvg && idx > best) {
			best = idx
			bestAvg = avg
		}
	}
	return best
}

// Promote selects the description with the highest average image score, then
// copies that description's best alternate to the unit's promoted files.
// Votes weigh in only between the winning description's images. The promoted
// image is always a byte-for-byte copy of an alternate, never an edit in
// place; ties break toward the most recently generated candidate.
func (e *Engine) Promote(ctx context.Context, internalID string, u Unit) (*Alternate, error) {
	alternates, err := e.loadAlternates(ctx, internalID, u)
	if err != nil {
		return nil, err
	}
	if len(alternates) == 0 {
		return nil, clerror.New(clerror.ResourceMissing,
			"%s has no successfully generated images to promote", u)
	}

	human := map[[2]int]int{}
	aiVotes := map[[2]int]int{}
	if u.Kind == UnitPage {
		fb, err := e.loadFeedback(ctx, internalID, u.Page)
		if err != nil {
			return nil, err
		}
		human, aiVotes = netVotes(fb)
	}

	winner := bestDescription(alternates)
	var group []Alternate
	for _, alt := range alternates {
		if alt.DescriptionIndex == winner {
			group = append(group, alt)
		}
	}

	best := group[0]
	bestScore := compositeScore(best, human, aiVotes)
	for _, alt := range group[1:] {
		score := compositeScore(alt, human, aiVotes)
		if score > bestScore || (score == bestScore && moreRecent(alt, best)) {
			best = alt
			bestScore = score
		}
	}

	unitDir := UnitDir(internalID, u)
	descDir := DescriptionDir(internalID, u, best.DescriptionIndex)
	copies := [][2]string{
		{unitDir + "/" + best.Image, PromotedImageKey(internalID, u)},
		{unitDir + "/" + best.Interpretation, PromotedInterpretationKey(internalID, u)},
		{unitDir + "/" + best.Evaluation, PromotedEvaluationKey(internalID, u)},
		{expandedDescriptionKey(descDir), PromotedDescriptionKey(internalID, u)},
	}
	for _, c := range copies {
		if err := e.fs.Copy(ctx, c[0], c[1]); err != nil {
			return nil, err
		}
	}
	e.log.Info("promoted image", "project", internalID, "unit", u.String(),
		"description", best.DescriptionIndex, "image", best.ImageIndex, "score", bestScore)
	return &best, nil
}

func moreRecent(a, b Alternate) bool {
	if a.DescriptionIndex != b.DescriptionIndex {
		return a.DescriptionIndex > b.DescriptionIndex
	}
	return a.ImageIndex > b.ImageIndex
}
