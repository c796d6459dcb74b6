// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeTimeWindowPattern = regexp.MustCompile(
		`(?i)\b(?:in\s+the\s+)?(?:last|past|previous)\s+(\d{1,3})\s+(day|days|week|weeks|month|months)\b`)
	relativeTimeKeywordsPattern = regexp.MustCompile(
		`(?i)\b(?:today|yesterday|this\s+week|last\s+week|this\s+month|last\s+month)\b`)
	todayPattern     = regexp.MustCompile(`(?i)\btoday\b`)
	yesterdayPattern = regexp.MustCompile(`(?i)\byesterday\b`)
	thisWeekPattern  = regexp.MustCompile(`(?i)\bthis\s+week\b`)
	lastWeekPattern  = regexp.MustCompile(`(?i)\blast\s+week\b`)
	thisMonthPattern = regexp.MustCompile(`(?i)\bthis\s+month\b`)
	lastMonthPattern = regexp.MustCompile(`(?i)\blast\s+month\b`)
)

// resolvedTimeWindow pins a relative time phrase to inclusive dates.
type resolvedTimeWindow struct {
	SourcePhrase   string
	StartDate      time.Time
	EndDate        time.Time
	Interpretation string
}

func shiftMonthStart(start time.Time, monthDelta int) time.Time {
	year := start.Year()
	month := int(start.Month()) + monthDelta
	for month <= 0 {
		month += 12
		year--
	}
	for month > 12 {
		month -= 12
		year++
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func dayOf(v time.Time) time.Time {
	return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
}

func weekdayIndex(v time.Time) int {
	return (int(v.Weekday()) + 6) % 7
}

// extractTimeWindow resolves a relative time phrase against today.
//
// # Description
//
//	Counted windows ("last 3 days", "past 2 weeks", "previous 1 month")
//	are inclusive of today; month windows snap to calendar month starts.
//	Keyword phrases cover today, yesterday, this/last week (Monday
//	start), and this/last month. Returns nil when the question carries no
//	relative time phrase.
func extractTimeWindow(question string, today time.Time) *resolvedTimeWindow {
	today = dayOf(today)
	lowered := strings.ToLower(question)

	if match := relativeTimeWindowPattern.FindStringSubmatchIndex(lowered); match != nil {
		amountText := lowered[match[2]:match[3]]
		unit := lowered[match[4]:match[5]]
		amount, _ := strconv.Atoi(amountText)
		if amount > 0 {
			sourcePhrase := strings.TrimSpace(question[match[0]:match[1]])
			switch {
			case strings.HasPrefix(unit, "day"):
				return &resolvedTimeWindow{
					SourcePhrase:   sourcePhrase,
					StartDate:      today.AddDate(0, 0, -(amount - 1)),
					EndDate:        today,
					Interpretation: fmt.Sprintf("rolling last %d day(s) including today", amount),
				}
			case strings.HasPrefix(unit, "week"):
				return &resolvedTimeWindow{
					SourcePhrase:   sourcePhrase,
					StartDate:      today.AddDate(0, 0, -(amount*7 - 1)),
					EndDate:        today,
					Interpretation: fmt.Sprintf("rolling last %d week(s) including today", amount),
				}
			case strings.HasPrefix(unit, "month"):
				thisMonthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
				return &resolvedTimeWindow{
					SourcePhrase:   sourcePhrase,
					StartDate:      shiftMonthStart(thisMonthStart, -(amount - 1)),
					EndDate:        today,
					Interpretation: fmt.Sprintf("calendar window over last %d month(s) including current month", amount),
				}
			}
		}
	}

	switch {
	case todayPattern.MatchString(lowered):
		return &resolvedTimeWindow{
			SourcePhrase:   "today",
			StartDate:      today,
			EndDate:        today,
			Interpretation: "today only",
		}
	case yesterdayPattern.MatchString(lowered):
		yesterday := today.AddDate(0, 0, -1)
		return &resolvedTimeWindow{
			SourcePhrase:   "yesterday",
			StartDate:      yesterday,
			EndDate:        yesterday,
			Interpretation: "yesterday only",
		}
	case thisWeekPattern.MatchString(lowered):
		return &resolvedTimeWindow{
			SourcePhrase:   "this week",
			StartDate:      today.AddDate(0, 0, -weekdayIndex(today)),
			EndDate:        today,
			Interpretation: "current week to date (Monday start)",
		}
	case lastWeekPattern.MatchString(lowered):
		lastWeekEnd := today.AddDate(0, 0, -(weekdayIndex(today) + 1))
		return &resolvedTimeWindow{
			SourcePhrase:   "last week",
			StartDate:      lastWeekEnd.AddDate(0, 0, -6),
			EndDate:        lastWeekEnd,
			Interpretation: "previous full week (Monday-Sunday)",
		}
	case thisMonthPattern.MatchString(lowered):
		return &resolvedTimeWindow{
			SourcePhrase:   "this month",
			StartDate:      time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC),
			EndDate:        today,
			Interpretation: "current month to date",
		}
	case lastMonthPattern.MatchString(lowered):
		thisMonthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		lastMonthEnd := thisMonthStart.AddDate(0, 0, -1)
		return &resolvedTimeWindow{
			SourcePhrase:   "last month",
			StartDate:      time.Date(lastMonthEnd.Year(), lastMonthEnd.Month(), 1, 0, 0, 0, 0, time.UTC),
			EndDate:        lastMonthEnd,
			Interpretation: "previous full calendar month",
		}
	}
	return nil
}

func buildTimeWindowHint(window *resolvedTimeWindow, timezoneName string) string {
	return fmt.Sprintf(
		"Temporal range from '%s' => date_incurred BETWEEN '%s' AND '%s' (inclusive, timezone '%s', %s).",
		window.SourcePhrase,
		window.StartDate.Format(time.DateOnly),
		window.EndDate.Format(time.DateOnly),
		timezoneName,
		window.Interpretation,
	)
}

func hasRelativeTimeIntent(question string) bool {
	lowered := strings.ToLower(question)
	return relativeTimeWindowPattern.MatchString(lowered) || relativeTimeKeywordsPattern.MatchString(lowered)
}
