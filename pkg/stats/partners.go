package stats

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Partner weighting. The complementarity term dominates; the volume term
// rewards candidates with enough sessions to make a shared schedule likely,
// saturating at twelve.
const (
	complementarityWeight = 0.7
	volumeWeight          = 0.3
	volumeSaturation      = 12
)

// PartnerEntry is one collaboration suggestion.
type PartnerEntry struct {
	SubjectID       string  `json:"subject_id"`
	Overlap         int     `json:"overlap"`
	Complementarity float64 `json:"complementarity"`
	Score           float64 `json:"score"`
}

// Partners ranks a scope's other subjects as collaboration candidates for
// subject. Each subject's activity is the set of (day, hour) buckets it has
// streamed in; candidates whose schedules complement the subject's score
// highest. Ordering is deterministic: score descending, subject ID
// ascending.
func (a *Aggregator) Partners(ctx context.Context, scopeID, subject string, period Period, limit int) ([]PartnerEntry, error) {
	if limit < 1 {
		limit = 5
	}

	since := period.Since(a.now())
	own, err := a.bucketSet(ctx, scopeID, subject, since)
	if err != nil {
		return nil, err
	}

	subjects, err := a.store.Subjects(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}

	var entries []PartnerEntry
	for _, candidate := range subjects {
		if candidate == subject {
			continue
		}
		theirs, err := a.bucketSet(ctx, scopeID, candidate, since)
		if err != nil {
			return nil, err
		}
		if len(theirs) == 0 {
			continue
		}

		entry := score(candidate, own, theirs)
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].SubjectID < entries[j].SubjectID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// score combines schedule complementarity with an activity-volume term.
func score(candidate string, own, theirs map[int]struct{}) PartnerEntry {
	intersection := 0
	for b := range own {
		if _, ok := theirs[b]; ok {
			intersection++
		}
	}
	union := len(own) + len(theirs) - intersection

	entry := PartnerEntry{SubjectID: candidate, Overlap: intersection}
	if union > 0 {
		entry.Complementarity = float64(union-intersection) / float64(union) * 100
	}

	volume := float64(len(theirs)) / volumeSaturation
	if volume > 1 {
		volume = 1
	}
	entry.Score = complementarityWeight*entry.Complementarity + volumeWeight*volume*100
	return entry
}

// bucketSet collects the distinct (day, hour) buckets a subject has
// streamed in, encoded as day*24+hour.
func (a *Aggregator) bucketSet(ctx context.Context, scopeID, subject string, since time.Time) (map[int]struct{}, error) {
	sessions, err := a.store.Query(ctx, scopeID, subject, since)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}

	buckets := make(map[int]struct{}, len(sessions))
	for _, s := range sessions {
		start := s.Start.UTC()
		buckets[int(start.Weekday())*24+start.Hour()] = struct{}{}
	}
	return buckets, nil
}
