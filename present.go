/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// teamInitials takes the first letter of every comma-separated member name.
func teamInitials(members string) string {
	var initials []string

	for _, name := range strings.Split(members, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		r, _ := utf8.DecodeRuneInString(name)
		initials = append(initials, string(r))
	}

	return strings.ToUpper(strings.Join(initials, ", "))
}

// borderGradient returns the CSS background for a challenge card's border:
// a solid color for one team, equal hard-edged stripes for several.
func borderGradient(completedBy []TeamSnapshot) string {
	switch len(completedBy) {
	case 0:
		return "transparent"
	case 1:
		return completedBy[0].Color
	}

	percentage := 100 / float64(len(completedBy))

	stops := make([]string, 0, len(completedBy))
	for i, t := range completedBy {
		start := float64(i) * percentage
		end := float64(i+1) * percentage
		stops = append(stops, t.Color+" "+cssPercent(start)+", "+t.Color+" "+cssPercent(end))
	}

	return "linear-gradient(90deg, " + strings.Join(stops, ", ") + ")"
}

func cssPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

// assignColor keeps the requested palette color when it is free, otherwise
// falls back to the first free one. With the palette exhausted the request
// wins, so colors are unique only while there are enough of them.
func assignColor(requested string, teams []Team) string {
	used := make(map[string]bool, len(teams))
	for _, t := range teams {
		used[t.Color] = true
	}

	valid := slices.Contains(teamColors, requested)

	if valid && !used[requested] {
		return requested
	}

	for _, c := range teamColors {
		if !used[c] {
			return c
		}
	}

	if valid {
		return requested
	}

	return teamColors[0]
}
