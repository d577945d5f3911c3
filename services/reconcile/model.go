package reconcile

import "fmt"

const (
	SubjectAccount  = "account"
	SubjectCampaign = "campaign"
)

// Mismatch is one failed ledger check.
type Mismatch struct {
	Subject   string `json:"subject"`
	SubjectID string `json:"subject_id"`
	Check     string `json:"check"`
	Expected  int64  `json:"expected"`
	Actual    int64  `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: %s expected %d got %d", m.Subject, m.SubjectID, m.Check, m.Expected, m.Actual)
}

// Report summarizes a full pass.
type Report struct {
	Accounts   int        `json:"accounts"`
	Campaigns  int        `json:"campaigns"`
	Mismatches []Mismatch `json:"mismatches"`
}

func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

type checker struct {
	subject string
	id      string
	out     []Mismatch
}

func (c *checker) equal(check string, expected, actual int64) {
	if expected != actual {
		c.out = append(c.out, Mismatch{Subject: c.subject, SubjectID: c.id, Check: check, Expected: expected, Actual: actual})
	}
}

func (c *checker) holds(check string, ok bool) {
	if !ok {
		c.out = append(c.out, Mismatch{Subject: c.subject, SubjectID: c.id, Check: check, Expected: 1, Actual: 0})
	}
}
