package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key prefixes of the cached suggestion flows.
const (
	RecommendationPrefix = "recommendations"
	SchedulePrefix       = "schedule_suggestions"
)

var (
	recommendationParams = map[string]bool{"useAI": true, "useVector": true, "limit": true}
	scheduleParams       = map[string]bool{
		"classId": true, "category": true, "trainerId": true,
		"dateRange": true, "useAI": true, "limit": true,
	}
	boolParams = map[string]bool{"useAI": true, "useVector": true}
)

// Params are request parameters that take part in a cache key.
type Params map[string]string

// Bool sets a boolean parameter in its canonical form.
func (p Params) Bool(name string, v bool) Params {
	p[name] = strconv.FormatBool(v)
	return p
}

// Int sets an integer parameter.
func (p Params) Int(name string, v int) Params {
	p[name] = strconv.Itoa(v)
	return p
}

// String sets a string parameter. Empty values are left out of the key.
func (p Params) String(name, v string) Params {
	if v != "" {
		p[name] = v
	}
	return p
}

// RecommendationKey derives the cache key of a class recommendation request.
func RecommendationKey(memberID string, params Params) string {
	return buildKey(RecommendationPrefix, memberID, params, recommendationParams)
}

// ScheduleKey derives the cache key of a schedule suggestion request.
func ScheduleKey(memberID string, params Params) string {
	return buildKey(SchedulePrefix, memberID, params, scheduleParams)
}

// MemberPatterns returns the glob patterns covering every cached entry of
// one member.
func MemberPatterns(memberID string) []string {
	segment := memberSegment(memberID)
	return []string{
		RecommendationPrefix + ":" + segment + ":*",
		SchedulePrefix + ":" + segment + ":*",
	}
}

// memberSegment escapes a member ID for use inside a key. The result holds
// no ':' separator and no glob metacharacter, so one member's pattern never
// reaches another member's keys.
func memberSegment(memberID string) string {
	return url.QueryEscape(memberID)
}

// buildKey renders prefix:memberID:k=v&k=v with whitelisted parameters sorted
// by name, so identical parameter sets give byte-identical keys regardless of
// insertion order. Boolean spellings are normalised.
func buildKey(prefix, memberID string, params Params, allowed map[string]bool) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if allowed[name] && value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		value := strings.TrimSpace(params[name])
		if boolParams[name] {
			value = normalizeBool(value)
		}
		pairs[i] = name + "=" + url.QueryEscape(value)
	}
	return prefix + ":" + memberSegment(memberID) + ":" + strings.Join(pairs, "&")
}

func normalizeBool(v string) string {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return "true"
	case "false", "0", "no", "off":
		return "false"
	}
	return v
}
