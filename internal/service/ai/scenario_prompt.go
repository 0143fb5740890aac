package ai

import (
	"fmt"
	"strings"

	"github.com/parlohq/parlo/backend/internal/model/scenario"
)

// buildSystemPrompt renders the tutor persona prompt for a scenario. Unknown
// keys fall back to a free-topic template that treats the key itself as the
// conversation topic.
func (s *Service) buildSystemPrompt(scenarioKey string) string {
	if s.scenarios != nil {
		if sc, ok := s.scenarios.FindByID(scenarioKey); ok {
			return buildScenarioPrompt(sc)
		}
	}
	return buildFreeTopicPrompt(scenarioKey)
}

func buildScenarioPrompt(sc scenario.Scenario) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a language tutor playing %s.\n\n", sc.TutorRole)
	fmt.Fprintf(&b, "Setting: %s\n", sc.Setting)
	fmt.Fprintf(&b, "Goal: help the learner %s.\n", sc.Objective)

	b.WriteString("\nRules:\n")
	b.WriteString("- Stay in character for the whole conversation.\n")
	b.WriteString("- Speak in short, natural sentences suited to a learner.\n")
	b.WriteString("- Correct mistakes by restating them naturally, never with a lecture.\n")
	if sc.PromptHint != "" {
		fmt.Fprintf(&b, "- %s\n", sc.PromptHint)
	}

	if sc.OpeningHint != "" {
		fmt.Fprintf(&b, "\nWhen the conversation starts: %s\n", sc.OpeningHint)
	}

	fmt.Fprintf(&b, "\nThe marker %q means the learner has just arrived; open the scene yourself.", OpeningSentinel)
	return b.String()
}

func buildFreeTopicPrompt(topic string) string {
	if strings.TrimSpace(topic) == "" {
		topic = "everyday life"
	}

	return fmt.Sprintf(`You are a friendly, patient language tutor.

Hold a relaxed conversation with the learner about %s. Keep your replies
short, ask follow-up questions, and restate the learner's mistakes naturally
inside your answers instead of lecturing.

The marker %q means the learner has just arrived; greet them and open the
conversation yourself.`, topic, OpeningSentinel)
}
