package conflict

import (
	"fmt"
	"strings"
)

// Policy is the closed set of collision behaviors: Overwrite, Rename or Skip.
type Policy interface {
	Mode() string
	policy()
}

type Overwrite struct{}

type Skip struct{}

type Rename struct {
	Pattern string
}

func (Overwrite) Mode() string { return "overwrite" }
func (Skip) Mode() string      { return "skip" }
func (Rename) Mode() string    { return "rename" }

func (Overwrite) policy() {}
func (Skip) policy()      {}
func (Rename) policy()    {}

const DefaultPattern = "{name}_{n}.{ext}"

func ParsePolicy(mode, pattern string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "overwrite":
		return Overwrite{}, nil
	case "skip":
		return Skip{}, nil
	case "rename", "":
		if strings.TrimSpace(pattern) == "" {
			pattern = DefaultPattern
		}
		return Rename{Pattern: pattern}, nil
	default:
		return nil, fmt.Errorf("unknown collision mode: %s", mode)
	}
}
