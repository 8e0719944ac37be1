package flow

import (
	"regexp"

	"mesh-agent/internal/models"
)

// familyConfig carries the per-family thresholds. Every family shares the
// same machine shape; only the constants differ.
type familyConfig struct {
	flow models.FlowType

	// searchTerm resolves the family root in the catalog.
	searchTerm string

	// largeSide: both sides above this means the order is inherently custom
	// and goes straight to a human.
	largeSide float64

	needsPercentage bool
	usesQuantity    bool

	askDimensions string
	askPercentage string
}

var families = map[models.FlowType]familyConfig{
	models.FlowPanel: {
		flow:            models.FlowPanel,
		searchTerm:      "shade mesh",
		largeSide:       10.0,
		needsPercentage: true,
		askDimensions:   "What size do you need? Send me the width and height in meters, like 4x6.",
		askPercentage:   "And which shade percentage? We carry 50%, 80% and 90%.",
	},
	models.FlowRoll: {
		flow:            models.FlowRoll,
		searchTerm:      "mesh roll",
		largeSide:       60.0,
		needsPercentage: true,
		askDimensions:   "What roll do you need? Send me the width and length in meters, like 3x50.",
		askPercentage:   "And which shade percentage? We carry 50%, 80% and 90%.",
	},
	models.FlowTape: {
		flow:          models.FlowTape,
		searchTerm:    "border tape",
		usesQuantity:  true,
		askDimensions: "How many rolls of border tape do you need?",
	},
}

// standardPercentages are the only shade values the catalog structurally
// carries. Anything else cannot be produced and escalates.
var standardPercentages = map[int]bool{50: true, 80: true, 90: true}

var (
	rollRe  = regexp.MustCompile(`\broll(s)?\b`)
	tapeRe  = regexp.MustCompile(`\b(tape|border)\b`)
	panelRe = regexp.MustCompile(`\b(mesh|shade|panel|cover|tarp|screen)\b`)
)

// detectFamily reads a family hint out of the message. FlowNone means the
// text names no product family.
func detectFamily(text string) models.FlowType {
	switch {
	case rollRe.MatchString(text):
		return models.FlowRoll
	case tapeRe.MatchString(text):
		return models.FlowTape
	case panelRe.MatchString(text):
		return models.FlowPanel
	default:
		return models.FlowNone
	}
}
