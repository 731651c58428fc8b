package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"webchat/internal/models"
)

// Slash commands are ephemeral: they are never persisted and never
// enter the chat-message broadcast path. A result is either broadcast
// to everyone or shown privately to the issuer, always as a system
// event.
type commandResult struct {
	broadcast string // system text for everyone, empty if none
	private   string // system text for the issuer only, empty if none
}

const commandTrigger = "/"

// isCommand reports whether a text payload should be intercepted by
// the command interpreter. Only text messages carry commands.
func isCommand(kind, content string) bool {
	return kind == models.KindText && strings.HasPrefix(content, commandTrigger)
}

// runCommand resolves a command to its result. Unrecognized commands
// produce a private error.
func runCommand(user, input string) commandResult {
	switch strings.TrimSpace(input) {
	case "/roll":
		return commandResult{
			broadcast: fmt.Sprintf("%s rolled the dice: %d (1-100)", user, rand.IntN(100)+1),
		}
	case "/coin":
		side := "heads"
		if rand.IntN(2) == 1 {
			side = "tails"
		}
		return commandResult{
			broadcast: fmt.Sprintf("%s flipped a coin: %s", user, side),
		}
	case "/help":
		return commandResult{
			private: "Available commands: /roll (dice), /coin (coin flip), /help",
		}
	default:
		return commandResult{
			private: "Unknown command, type /help for a list",
		}
	}
}
