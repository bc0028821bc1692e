package social

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	trendScanLimit = 1000
	maxTrends      = 5
)

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// Trends returns the most used hashtags across recent posts. Failures degrade to an empty list.
func (s *Service) Trends(ctx context.Context) []Trend {
	var contents []string
	err := s.db.WithContext(ctx).Model(&Post{}).
		Where("content LIKE ?", "%#%").
		Order("created_at_ms DESC").Order("id DESC").
		Limit(trendScanLimit).
		Pluck("content", &contents).Error
	if err != nil {
		s.logger.Warn("trending topics unavailable", zap.String("operation", opTrends), zap.Error(err))
		return []Trend{}
	}
	return countHashtags(contents, maxTrends)
}

// countHashtags counts each lower cased hashtag once per post and returns the top limit, ties by name.
func countHashtags(contents []string, limit int) []Trend {
	counts := make(map[string]int)
	for _, content := range contents {
		seen := make(map[string]struct{})
		for _, tag := range hashtagPattern.FindAllString(content, -1) {
			tag = strings.ToLower(tag)
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			counts[tag]++
		}
	}
	trends := make([]Trend, 0, len(counts))
	for tag, count := range counts {
		trends = append(trends, Trend{Hashtag: tag, Count: count})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Count != trends[j].Count {
			return trends[i].Count > trends[j].Count
		}
		return trends[i].Hashtag < trends[j].Hashtag
	})
	if len(trends) > limit {
		trends = trends[:limit]
	}
	return trends
}
