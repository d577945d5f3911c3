package action

import (
	"encoding/json"
	"testing"

	"engagement-ledger/services/campaign"

	"github.com/stretchr/testify/require"
)

func TestDecodeEvidenceShapes(t *testing.T) {
	cases := []struct {
		name    string
		typ     campaign.ActionType
		raw     string
		want    Evidence
		checkOK bool
	}{
		{"view", campaign.ActionView, `{"views":{"before":1,"after":2}}`, ViewEvidence{Views: CounterDelta{1, 2}}, true},
		{"like unchanged", campaign.ActionLike, `{"likes":{"before":3,"after":3}}`, LikeEvidence{Likes: CounterDelta{3, 3}}, false},
		{"comment", campaign.ActionComment, `{"comments":{"before":0,"after":1},"comment_id":"c-1"}`, CommentEvidence{Comments: CounterDelta{0, 1}, CommentID: "c-1"}, true},
		{"comment decreased", campaign.ActionComment, `{"comments":{"before":4,"after":2}}`, CommentEvidence{Comments: CounterDelta{4, 2}}, false},
		{"follow", campaign.ActionFollow, `{"performer_handle":"@Dana","followers":["eve","DANA"]}`, FollowEvidence{PerformerHandle: "@Dana", Followers: []string{"eve", "DANA"}}, true},
		{"follow empty handle", campaign.ActionFollow, `{"performer_handle":"@","followers":[""]}`, FollowEvidence{PerformerHandle: "@", Followers: []string{""}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvidence(tc.typ, json.RawMessage(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, ev)
			require.Equal(t, tc.typ, ev.actionType())
			if tc.checkOK {
				require.NoError(t, ev.Check())
			} else {
				require.Error(t, ev.Check())
			}
		})
	}
}

func TestDecodeEvidenceErrors(t *testing.T) {
	_, err := DecodeEvidence(campaign.ActionView, nil)
	require.Error(t, err)

	_, err = DecodeEvidence(campaign.ActionView, json.RawMessage(`[1,2]`))
	require.Error(t, err)

	_, err = DecodeEvidence("SHARE", json.RawMessage(`{}`))
	require.Error(t, err)
}
