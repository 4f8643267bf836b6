/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import "time"

const manualAdjustmentLabel = "Manual adjustment"

// Yellow, red, blue, green.
var teamColors = []string{"#FFD700", "#FF4757", "#3B82F6", "#10B981"}

// HistoryEntry records one score change. Challenge is a label copied at the
// time of the change, not a reference.
type HistoryEntry struct {
	ID        int64  `json:"id"`
	Points    int    `json:"points"`
	Challenge string `json:"challenge"`
	Timestamp string `json:"timestamp"`
}

type Team struct {
	ID        int64          `json:"id"`
	Members   string         `json:"members"`
	Color     string         `json:"color"`
	Score     int            `json:"score"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
}

// TeamSnapshot is the point-in-time copy of a team stored in a challenge's
// completion list. Later changes to the team do not touch it.
type TeamSnapshot struct {
	ID      int64  `json:"id"`
	Members string `json:"members"`
	Color   string `json:"color"`
}

type Challenge struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	CompletedBy []TeamSnapshot `json:"completed_by"`
}

func (t Team) snapshot() TeamSnapshot {
	return TeamSnapshot{
		ID:      t.ID,
		Members: t.Members,
		Color:   t.Color,
	}
}

func (t Team) clone() Team {
	t.History = append([]HistoryEntry{}, t.History...)
	return t
}

func (c Challenge) clone() Challenge {
	c.CompletedBy = append([]TeamSnapshot{}, c.CompletedBy...)
	return c
}

func (c Challenge) completedBy(teamID int64) bool {
	for _, t := range c.CompletedBy {
		if t.ID == teamID {
			return true
		}
	}
	return false
}
