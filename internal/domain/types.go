package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FusionType selects the rule used to combine independent opinions.
type FusionType string

const (
	FusionCumulative       FusionType = "cumulative"
	FusionAverage          FusionType = "average"
	FusionWeighted         FusionType = "weighted"
	FusionBeliefConstraint FusionType = "belief_constraint"
)

func ValidFusionType(s string) bool {
	switch FusionType(s) {
	case FusionCumulative, FusionAverage, FusionWeighted, FusionBeliefConstraint:
		return true
	}
	return false
}

// ConflictType selects how disagreement within a set of opinions is
// aggregated.
type ConflictType string

const (
	ConflictAccumulate       ConflictType = "accumulate"
	ConflictAverage          ConflictType = "average"
	ConflictBeliefCumulative ConflictType = "belief_cumulative"
	ConflictBeliefAverage    ConflictType = "belief_average"
)

func ValidConflictType(s string) bool {
	switch ConflictType(s) {
	case ConflictAccumulate, ConflictAverage, ConflictBeliefCumulative, ConflictBeliefAverage:
		return true
	}
	return false
}

// Accumulates reports whether pairwise values are summed rather than
// averaged.
func (c ConflictType) Accumulates() bool {
	return c == ConflictAccumulate || c == ConflictBeliefCumulative
}

// OnBeliefMasses reports whether pairs are compared on their belief and
// uncertainty masses instead of their projected probabilities.
func (c ConflictType) OnBeliefMasses() bool {
	return c == ConflictBeliefAverage || c == ConflictBeliefCumulative
}

// Averaged returns the averaging counterpart of c.
func (c ConflictType) Averaged() ConflictType {
	if c.OnBeliefMasses() {
		return ConflictBeliefAverage
	}
	return ConflictAverage
}

// RevisionType selects how a revision term turns observed disagreement into
// per-source trust adjustments.
type RevisionType string

const (
	RevisionNormal                      RevisionType = "normal"
	RevisionHarmonyNormal               RevisionType = "harmony_normal"
	RevisionConflictShares              RevisionType = "conflict_shares"
	RevisionConflictSharesAllowNegative RevisionType = "conflict_shares_allow_negative"
	RevisionHarmonyShares               RevisionType = "harmony_shares"
	RevisionHarmonySharesAllowNegative  RevisionType = "harmony_shares_allow_negative"
	RevisionReferenceFusion             RevisionType = "reference_fusion"
	RevisionHarmonyReferenceFusion      RevisionType = "harmony_reference_fusion"
)

func ValidRevisionType(s string) bool {
	switch RevisionType(s) {
	case RevisionNormal, RevisionHarmonyNormal,
		RevisionConflictShares, RevisionConflictSharesAllowNegative,
		RevisionHarmonyShares, RevisionHarmonySharesAllowNegative,
		RevisionReferenceFusion, RevisionHarmonyReferenceFusion:
		return true
	}
	return false
}

// RevisionTerm is one weighted contribution to trust revision. Terms are
// combined by summing weight * factor per source.
type RevisionTerm struct {
	Type     RevisionType `json:"type"`
	Conflict ConflictType `json:"conflict"`
	Weight   float64      `json:"weight"`
}

func (t RevisionTerm) Validate() error {
	if !ValidRevisionType(string(t.Type)) {
		return fmt.Errorf("invalid revision type %q", t.Type)
	}
	if !ValidConflictType(string(t.Conflict)) {
		return fmt.Errorf("invalid conflict type %q", t.Conflict)
	}
	return nil
}

func (t RevisionTerm) String() string {
	return fmt.Sprintf("%s:%s:%s", t.Type, t.Conflict, strconv.FormatFloat(t.Weight, 'g', -1, 64))
}

// ParseRevisionTerms parses "type:conflict:weight" entries separated by
// commas, e.g. "conflict_shares:average:1,harmony_shares:average:0.5".
func ParseRevisionTerms(s string) ([]RevisionTerm, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var terms []RevisionTerm
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("revision term %q: want type:conflict:weight", entry)
		}
		weight, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("revision term %q: %w", entry, err)
		}
		term := RevisionTerm{
			Type:     RevisionType(strings.ToLower(parts[0])),
			Conflict: ConflictType(strings.ToLower(parts[1])),
			Weight:   weight,
		}
		if err := term.Validate(); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// SharePolicy decides how a source's share of the total conflict (or
// harmony) is computed.
type SharePolicy string

const (
	// ShareLeaveOneOut: share_i = 1 - C(all but i) / C(all). Negative when
	// removing source i increases the aggregate.
	ShareLeaveOneOut SharePolicy = "leave_one_out"
	// ShareProportional: share_i = s_i / sum(s), with s_i the summed
	// pairwise value between source i and every other source.
	ShareProportional SharePolicy = "proportional"
)

func ValidSharePolicy(s string) bool {
	switch SharePolicy(s) {
	case ShareLeaveOneOut, ShareProportional:
		return true
	}
	return false
}

// ReferencePolicy decides which sources form the reference a source is
// compared against in reference-fusion revision.
type ReferencePolicy string

const (
	// ReferenceLeaveOneOut compares source i with the fusion of every other
	// source.
	ReferenceLeaveOneOut ReferencePolicy = "leave_one_out"
	// ReferenceJoint compares every source with the fusion of all sources
	// and only penalises conflict above the average.
	ReferenceJoint ReferencePolicy = "joint"
)

func ValidReferencePolicy(s string) bool {
	switch ReferencePolicy(s) {
	case ReferenceLeaveOneOut, ReferenceJoint:
		return true
	}
	return false
}
