package packy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/theirongolddev/pburn/internal/model"
)

// UserInfo is the subset of the users/info response the monitor reads. Amounts
// are kept raw because the backend sends them as numbers or numeric strings.
type UserInfo struct {
	DailyBudgetUSD   json.RawMessage `json:"daily_budget_usd"`
	DailySpentUSD    json.RawMessage `json:"daily_spent_usd"`
	MonthlyBudgetUSD json.RawMessage `json:"monthly_budget_usd"`
	MonthlySpentUSD  json.RawMessage `json:"monthly_spent_usd"`
}

// Usage converts the response into raw budget buckets.
func (u UserInfo) Usage() (model.RawUsage, error) {
	fields := []struct {
		kind        model.BucketKind
		used, total json.RawMessage
		prefix      string
	}{
		{model.Daily, u.DailySpentUSD, u.DailyBudgetUSD, "daily"},
		{model.Monthly, u.MonthlySpentUSD, u.MonthlyBudgetUSD, "monthly"},
	}

	var raw model.RawUsage
	for _, f := range fields {
		total, err := parseAmount(f.prefix+"_budget_usd", f.total)
		if err != nil {
			return model.RawUsage{}, err
		}
		used, err := parseAmount(f.prefix+"_spent_usd", f.used)
		if err != nil {
			return model.RawUsage{}, err
		}
		raw.Buckets = append(raw.Buckets, model.RawBucket{Kind: f.kind, Used: used, Total: total})
	}
	return raw, nil
}

// parseAmount accepts a JSON number or a string holding one, like "12.50".
func parseAmount(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("packy: missing %s: %w", field, model.ErrParse)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimPrefix(strings.TrimSpace(s), "$")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("packy: %s is not numeric (%s): %w", field, truncate(string(raw), 32), model.ErrParse)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
