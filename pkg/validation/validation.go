package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	maxIDLength   = 100
	maxNameLength = 120
	maxGoals      = 20
	maxSkills     = 50
	maxGoalLength = 200
	maxBioLength  = 2000
)

// ValidateID checks a room, event or participant identifier.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s must be at most %d characters", kind, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s may only contain letters, digits, dash and underscore", kind)
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return nil
}

// ValidateGoals checks the goal list of a profile.
func ValidateGoals(goals []string) error {
	if len(goals) > maxGoals {
		return fmt.Errorf("at most %d goals allowed", maxGoals)
	}
	for _, goal := range goals {
		if len(goal) > maxGoalLength {
			return fmt.Errorf("goal %q exceeds %d characters", truncate(goal, 20), maxGoalLength)
		}
	}
	return nil
}

// ValidateSkills checks the skill list of a profile.
func ValidateSkills(skills []string) error {
	if len(skills) > maxSkills {
		return fmt.Errorf("at most %d skills allowed", maxSkills)
	}
	for _, skill := range skills {
		if len(skill) > maxGoalLength {
			return fmt.Errorf("skill %q exceeds %d characters", truncate(skill, 20), maxGoalLength)
		}
	}
	return nil
}

// ValidateBio checks the free-text bio.
func ValidateBio(bio string) error {
	if len(bio) > maxBioLength {
		return fmt.Errorf("bio must be at most %d characters", maxBioLength)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
