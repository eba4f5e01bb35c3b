package validation

import (
	"github.com/hyperengineering/nestegg/internal/types"
)

// CategoryLookup reports whether a category ID is registered.
type CategoryLookup interface {
	Contains(id string) bool
	IDs() []string
}

func statusNames() []string {
	out := make([]string, len(types.Statuses))
	for i, s := range types.Statuses {
		out[i] = string(s)
	}
	return out
}

func priorityNames() []string {
	out := make([]string, len(types.Priorities))
	for i, p := range types.Priorities {
		out[i] = string(p)
	}
	return out
}

func validateCategory(c *Collector, id string, categories CategoryLookup) {
	if id == "" || categories == nil {
		return
	}
	if !categories.Contains(id) {
		c.Add(ValidateEnum("category", id, categories.IDs()))
	}
}

// ValidateGoalInput validates a goal creation request.
// Name, target and emoji are required; everything else is optional.
func ValidateGoalInput(in types.GoalInput, categories CategoryLookup) []ValidationError {
	var c Collector

	c.Add(ValidateRequired("name", in.Name))
	ValidateText(&c, "name", in.Name, MaxNameLength)
	c.Add(ValidatePositive("target", in.Target))
	c.Add(ValidateRequired("emoji", in.Emoji))
	ValidateText(&c, "emoji", in.Emoji, MaxEmojiLength)
	ValidateText(&c, "color", in.Color, MaxColorLength)
	ValidateText(&c, "description", in.Description, MaxDescriptionLength)
	ValidateText(&c, "notes", in.Notes, MaxNotesLength)

	if in.Priority != "" {
		c.Add(ValidateEnum("priority", string(in.Priority), priorityNames()))
	}
	validateCategory(&c, in.CategoryID, categories)

	return c.Errors()
}

// ValidateGoalPatch validates a sparse goal update. Only fields present in the
// patch are checked.
func ValidateGoalPatch(p types.GoalPatch, categories CategoryLookup) []ValidationError {
	var c Collector

	if p.Name != nil {
		c.Add(ValidateRequired("name", *p.Name))
		ValidateText(&c, "name", *p.Name, MaxNameLength)
	}
	if p.Target != nil {
		c.Add(ValidatePositive("target", p.Target))
	}
	if p.Emoji != nil {
		c.Add(ValidateRequired("emoji", *p.Emoji))
		ValidateText(&c, "emoji", *p.Emoji, MaxEmojiLength)
	}
	if p.Color != nil {
		ValidateText(&c, "color", *p.Color, MaxColorLength)
	}
	if p.Description != nil {
		ValidateText(&c, "description", *p.Description, MaxDescriptionLength)
	}
	if p.Notes != nil {
		ValidateText(&c, "notes", *p.Notes, MaxNotesLength)
	}
	if p.CategoryID != nil {
		validateCategory(&c, *p.CategoryID, categories)
	}
	if p.Priority != nil {
		c.Add(ValidateEnum("priority", string(*p.Priority), priorityNames()))
	}
	if p.Status != nil {
		c.Add(ValidateEnum("status", string(*p.Status), statusNames()))
	}
	if p.Deadline != nil && p.ClearDeadline {
		c.Add(&ValidationError{Field: "deadline", Message: "cannot be set and cleared in the same update"})
	}

	return c.Errors()
}

// ValidateTransactionInput validates a transaction. The amount is signed and
// may be zero; deposit-only rules belong to callers.
func ValidateTransactionInput(in types.TransactionInput) []ValidationError {
	var c Collector

	c.Add(ValidatePresent("amount", in.Amount))
	ValidateText(&c, "note", in.Note, MaxNoteLength)

	return c.Errors()
}
