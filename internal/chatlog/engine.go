package chatlog

import "github.com/raphaelgruber/chatlog-go/internal/models"

// Apply discards the log from branchPoint onward, appends a new user/assistant
// exchange and returns the resulting log and title.
//
// When branchPoint is zero the title is re-derived from the user message.
// The user message gets sequence id len(log)+1; the assistant message gets
// len(log) measured after the user message was appended, so both share an id.
//
// Apply never modifies the input slice. Bounds checking of branchPoint is the
// caller's job: a branch point at or past the end of the log truncates nothing.
func Apply(log []models.Message, title string, branchPoint int, msg models.UserMessage, answer string) ([]models.Message, string) {
	keep := len(log)
	if branchPoint >= 0 && branchPoint < keep {
		keep = branchPoint
	}

	out := make([]models.Message, keep, keep+2)
	copy(out, log[:keep])

	if branchPoint == 0 {
		title = DeriveTitle(msg.Content)
	}

	out = append(out, models.Message{
		Type:          msg.Type,
		ID:            len(out) + 1,
		Role:          models.RoleUser,
		Content:       msg.Content,
		Transcription: msg.Transcription,
		Images:        append([]string(nil), msg.Images...),
	})
	out = append(out, models.Message{
		Type:    models.MessageTypeText,
		ID:      len(out),
		Role:    models.RoleAssistant,
		Content: answer,
	})

	return out, title
}
