package vote

import "time"

// Kind separates votable targets. Rate limits apply per kind.
type Kind string

const (
	KindEntry  Kind = "entry"
	KindSelfie Kind = "selfie"
)

// Vote is one ballot. The unique index closes on a day-truncated column so
// the storage constraint and the "once per calendar day" rule agree; the
// original kept a full timestamp in the index and the constraint never
// fired.
type Vote struct {
	VoteID    string    `gorm:"column:vote_id;primaryKey;size:190;not null"`
	VoterID   string    `gorm:"column:voter_id;size:190;not null;uniqueIndex:idx_votes_voter_target_day,priority:1;index:idx_votes_voter_kind_day,priority:1"`
	Kind      Kind      `gorm:"column:kind;size:16;not null;uniqueIndex:idx_votes_voter_target_day,priority:2;index:idx_votes_voter_kind_day,priority:2"`
	TargetID  string    `gorm:"column:target_id;size:190;not null;uniqueIndex:idx_votes_voter_target_day,priority:3;index:idx_votes_target"`
	VoteDay   string    `gorm:"column:vote_day;size:10;not null;uniqueIndex:idx_votes_voter_target_day,priority:4;index:idx_votes_voter_kind_day,priority:3"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}
