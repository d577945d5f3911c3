package action

import (
	"encoding/json"
	"fmt"
	"strings"

	"engagement-ledger/services/campaign"
)

// Verification is what the external verifier returns for one attempt.
// Details are shaped by the action type, see Evidence.
type Verification struct {
	Verified bool            `json:"verified"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// Evidence is the per action type payload of a verification result. The set
// of implementations is closed: ViewEvidence, LikeEvidence, CommentEvidence
// and FollowEvidence.
type Evidence interface {
	// Check re-validates the shape of the result. It does not verify the
	// action itself.
	Check() error
	actionType() campaign.ActionType
}

// CounterDelta is a public counter sampled before and after the action.
type CounterDelta struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

func (d CounterDelta) increased(name string) error {
	if d.After <= d.Before {
		return fmt.Errorf("%s count did not increase (%d -> %d)", name, d.Before, d.After)
	}
	return nil
}

type ViewEvidence struct {
	Views CounterDelta `json:"views"`
}

type LikeEvidence struct {
	Likes CounterDelta `json:"likes"`
}

type CommentEvidence struct {
	Comments  CounterDelta `json:"comments"`
	CommentID string       `json:"comment_id,omitempty"`
}

type FollowEvidence struct {
	PerformerHandle string   `json:"performer_handle"`
	Followers       []string `json:"followers"`
}

func (e ViewEvidence) Check() error { return e.Views.increased("view") }
func (e ViewEvidence) actionType() campaign.ActionType { return campaign.ActionView }
func (e LikeEvidence) Check() error { return e.Likes.increased("like") }
func (e LikeEvidence) actionType() campaign.ActionType { return campaign.ActionLike }
func (e CommentEvidence) Check() error { return e.Comments.increased("comment") }
func (e CommentEvidence) actionType() campaign.ActionType { return campaign.ActionComment }
func (e FollowEvidence) actionType() campaign.ActionType { return campaign.ActionFollow }

func (e FollowEvidence) Check() error {
	handle := normalizeHandle(e.PerformerHandle)
	if handle == "" {
		return fmt.Errorf("performer handle is empty")
	}
	for _, f := range e.Followers {
		if normalizeHandle(f) == handle {
			return nil
		}
	}
	return fmt.Errorf("%s is not in the follower list", e.PerformerHandle)
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// DecodeEvidence parses raw into the evidence shape of t.
func DecodeEvidence(t campaign.ActionType, raw json.RawMessage) (Evidence, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("verification details are missing")
	}

	var (
		ev  Evidence
		err error
	)
	switch t {
	case campaign.ActionView:
		var v ViewEvidence
		err = json.Unmarshal(raw, &v)
		ev = v
	case campaign.ActionLike:
		var v LikeEvidence
		err = json.Unmarshal(raw, &v)
		ev = v
	case campaign.ActionComment:
		var v CommentEvidence
		err = json.Unmarshal(raw, &v)
		ev = v
	case campaign.ActionFollow:
		var v FollowEvidence
		err = json.Unmarshal(raw, &v)
		ev = v
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s details: %w", t, err)
	}
	return ev, nil
}
