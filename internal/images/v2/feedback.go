package imagesv2

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

const (
	VoteUp   = "up"
	VoteDown = "down"

	// aiVoter marks votes synthesised from evaluation scores.
	aiVoter = "ai"
)

// Vote is one reaction to a candidate image. Votes are idempotent per
// (voter, image): voting again replaces the earlier vote.
type Vote struct {
	User             string    `json:"user"`
	DescriptionIndex int       `json:"description_index"`
	ImageIndex       int       `json:"image_index"`
	VoteType         string    `json:"vote_type"`
	Timestamp        time.Time `json:"timestamp"`
}

// Feedback is a page's community_feedback.json.
type Feedback struct {
	Votes            []Vote   `json:"votes"`
	Advice           []string `json:"advice"`
	VariantsRequests []string `json:"variants_requests"`
	Comments         []string `json:"comments"`
}

func (e *Engine) loadFeedback(ctx context.Context, internalID string, page int) (*Feedback, error) {
	fb := &Feedback{}
	key := FeedbackKey(internalID, page)
	ok, err := e.fs.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fb, nil
	}
	if err := e.readJSON(ctx, key, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func (e *Engine) saveFeedback(ctx context.Context, internalID string, page int, fb *Feedback) error {
	return e.writeJSON(ctx, FeedbackKey(internalID, page), fb)
}

// AddVote records a user's vote on one candidate image of a page. A repeat
// vote by the same user on the same image replaces the earlier one.
func (e *Engine) AddVote(ctx context.Context, internalID string, page int, userID uuid.UUID, descriptionIndex, imageIndex int, voteType string) error {
	if voteType != VoteUp && voteType != VoteDown {
		return clerror.New(clerror.Validation, "vote type must be %q or %q", VoteUp, VoteDown)
	}
	fb, err := e.loadFeedback(ctx, internalID, page)
	if err != nil {
		return err
	}
	upsertVote(fb, Vote{
		User:             userID.String(),
		DescriptionIndex: descriptionIndex,
		ImageIndex:       imageIndex,
		VoteType:         voteType,
		Timestamp:        time.Now(),
	})
	return e.saveFeedback(ctx, internalID, page, fb)
}

// AddAdvice appends free-text advice to a page's feedback.
func (e *Engine) AddAdvice(ctx context.Context, internalID string, page int, advice string) error {
	fb, err := e.loadFeedback(ctx, internalID, page)
	if err != nil {
		return err
	}
	fb.Advice = append(fb.Advice, advice)
	return e.saveFeedback(ctx, internalID, page, fb)
}

func upsertVote(fb *Feedback, v Vote) {
	for i, existing := range fb.Votes {
		if existing.User == v.User &&
			existing.DescriptionIndex == v.DescriptionIndex &&
			existing.ImageIndex == v.ImageIndex {
			fb.Votes[i] = v
			return
		}
	}
	fb.Votes = append(fb.Votes, v)
}

// RefreshAIVotes synthesises votes from evaluation scores: up at 3 or
// better, down at 1 or worse. Images any human has voted on keep the human
// verdict; the AI never overrides it.
func (e *Engine) RefreshAIVotes(ctx context.Context, internalID string, page int) error {
	alternates, err := e.loadAlternates(ctx, internalID, PageUnit(page))
	if err != nil {
		return err
	}
	fb, err := e.loadFeedback(ctx, internalID, page)
	if err != nil {
		return err
	}
	humanVoted := make(map[[2]int]bool)
	for _, v := range fb.Votes {
		if v.User != aiVoter {
			humanVoted[[2]int{v.DescriptionIndex, v.ImageIndex}] = true
		}
	}
	for _, alt := range alternates {
		if humanVoted[[2]int{alt.DescriptionIndex, alt.ImageIndex}] {
			continue
		}
		var voteType string
		switch {
		case alt.Score >= 3:
			voteType = VoteUp
		case alt.Score <= 1:
			voteType = VoteDown
		default:
			continue
		}
		upsertVote(fb, Vote{
			User:             aiVoter,
			DescriptionIndex: alt.DescriptionIndex,
			ImageIndex:       alt.ImageIndex,
			VoteType:         voteType,
			Timestamp:        time.Now(),
		})
	}
	return e.saveFeedback(ctx, internalID, page, fb)
}

// netVotes sums a page's votes per image, humans and AI separately.
func netVotes(fb *Feedback) (human, aiVotes map[[2]int]int) {
	human = make(map[[2]int]int)
	aiVotes = make(map[[2]int]int)
	for _, v := range fb.Votes {
		delta := 1
		if v.VoteType == VoteDown {
			delta = -1
		}
		key := [2]int{v.DescriptionIndex, v.ImageIndex}
		if v.User == aiVoter {
			aiVotes[key] += delta
		} else {
			human[key] += delta
		}
	}
	return human, aiVotes
}
