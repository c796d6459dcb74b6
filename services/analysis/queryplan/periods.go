// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queryplan

import (
	"strings"
	"time"
)

// Period keys form a closed vocabulary. Unknown keys resolve to this_month.
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodThisWeek   = "this_week"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
	PeriodLast60Days = "last_60_days"
	PeriodLast90Days = "last_90_days"
	PeriodThisMonth  = "this_month"
	PeriodLastMonth  = "last_month"
	PeriodThisYear   = "this_year"
	PeriodAllTime    = "all_time"
)

func firstDayOfMonth(v time.Time) time.Time {
	return time.Date(v.Year(), v.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// shiftMonths moves to the first day of the month delta months away.
func shiftMonths(v time.Time, delta int) time.Time {
	monthIndex := int(v.Month()) - 1 + delta
	year := v.Year() + floorDiv(monthIndex, 12)
	month := time.Month(mod(monthIndex, 12) + 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(v time.Time) time.Time {
	return shiftMonths(firstDayOfMonth(v), 1).AddDate(0, 0, -1)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// mondayIndex returns days since Monday (Monday = 0).
func mondayIndex(v time.Time) int {
	return (int(v.Weekday()) + 6) % 7
}

// resolvePeriodBounds maps a period key to inclusive date bounds and a
// display label. Nil bounds mean unbounded (all_time).
func resolvePeriodBounds(period string, referenceDate time.Time) (*time.Time, *time.Time, string) {
	ref := firstOfDay(referenceDate)
	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodToday:
		return &ref, &ref, "Today"
	case PeriodYesterday:
		y := ref.AddDate(0, 0, -1)
		return &y, &y, "Yesterday"
	case PeriodThisWeek:
		start := ref.AddDate(0, 0, -mondayIndex(ref))
		return &start, &ref, "This week"
	case PeriodLast7Days:
		start := ref.AddDate(0, 0, -6)
		return &start, &ref, "Last 7 days"
	case PeriodLast30Days:
		start := ref.AddDate(0, 0, -29)
		return &start, &ref, "Last 30 days"
	case PeriodLast60Days:
		start := ref.AddDate(0, 0, -59)
		return &start, &ref, "Last 60 days"
	case PeriodLast90Days:
		start := ref.AddDate(0, 0, -89)
		return &start, &ref, "Last 90 days"
	case PeriodLastMonth:
		start := shiftMonths(firstDayOfMonth(ref), -1)
		end := lastDayOfMonth(start)
		return &start, &end, "Last month"
	case PeriodThisYear:
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return &start, &ref, "This year"
	case PeriodAllTime:
		return nil, nil, "All time"
	default:
		start := firstDayOfMonth(ref)
		end := lastDayOfMonth(ref)
		return &start, &end, "This month"
	}
}

func firstOfDay(v time.Time) time.Time {
	return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
}

// inferPeriodFromQuestion lets explicit phrasing in the question override
// the caller-supplied period hint.
func inferPeriodFromQuestion(question, currentPeriod string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "today"):
		return PeriodToday
	case strings.Contains(q, "yesterday"):
		return PeriodYesterday
	case strings.Contains(q, "this week"):
		return PeriodThisWeek
	case strings.Contains(q, "this year"):
		return PeriodThisYear
	case strings.Contains(q, "all time"):
		return PeriodAllTime
	case strings.Contains(q, "last month"), strings.Contains(q, "past month"):
		return PeriodLastMonth
	case strings.Contains(q, "this month"):
		return PeriodThisMonth
	}

	if dayCount := extractNumber(`(?:last|past)\s+(`+numberToken+`)\s+days?`, q); dayCount != nil {
		switch {
		case *dayCount <= 7:
			return PeriodLast7Days
		case *dayCount <= 30:
			return PeriodLast30Days
		case *dayCount <= 60:
			return PeriodLast60Days
		default:
			return PeriodLast90Days
		}
	}

	if monthCount := extractNumber(`(?:last|past)\s+(`+numberToken+`)\s+months?`, q); monthCount != nil {
		switch {
		case *monthCount <= 1:
			return PeriodLastMonth
		case *monthCount == 2:
			return PeriodLast60Days
		case *monthCount <= 3:
			return PeriodLast90Days
		default:
			return PeriodAllTime
		}
	}

	return currentPeriod
}
