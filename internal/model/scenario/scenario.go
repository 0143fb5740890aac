package scenario

// Scenario describes a guided tutoring setting the client can pick when
// opening a conversation.
type Scenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Setting     string `json:"setting"`
	TutorRole   string `json:"tutorRole"`
	Objective   string `json:"objective"`
	PromptHint  string `json:"promptHint,omitempty"`
	OpeningHint string `json:"openingHint,omitempty"`
}

// Seed provides the default scenario catalog shipped with the product.
func Seed() []Scenario {
	return []Scenario{
		{
			ID:          "cafe-ordering",
			Title:       "Ordering at a café",
			Setting:     "A busy neighbourhood café at lunchtime.",
			TutorRole:   "a friendly barista taking the learner's order",
			Objective:   "practice ordering food and drinks, asking about the menu, and small talk at the counter",
			PromptHint:  "Keep replies short and conversational; gently rephrase the learner's mistakes inside your answer.",
			OpeningHint: "Greet the learner as a customer walking up to the counter.",
		},
		{
			ID:          "job-interview",
			Title:       "Job interview",
			Setting:     "A video interview for an entry-level office position.",
			TutorRole:   "a polite hiring manager running a first-round interview",
			Objective:   "practice answering common interview questions and describing experience",
			PromptHint:  "Ask one question at a time and follow up on the learner's answers.",
			OpeningHint: "Welcome the candidate and ask them to introduce themselves.",
		},
		{
			ID:          "travel-help",
			Title:       "Asking for directions",
			Setting:     "A train station in an unfamiliar city.",
			TutorRole:   "a helpful local the learner stops to ask for directions",
			Objective:   "practice asking for and understanding directions, times, and ticket prices",
			OpeningHint: "Notice the learner looking lost and offer to help.",
		},
	}
}
