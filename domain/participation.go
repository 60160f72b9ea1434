package domain

import "time"

// Participation is the per (channel, user) membership record.
type Participation struct {
	ChannelID  SubjectID `json:"channelId"`
	UserID     SubjectID `json:"userId"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// AdvanceReadHorizon moves the last-read timestamp forward and reports
// whether it actually moved. The horizon never goes backwards.
func (p *Participation) AdvanceReadHorizon(ts time.Time) bool {
	if !ts.After(p.LastReadAt) {
		return false
	}
	p.LastReadAt = ts
	return true
}
