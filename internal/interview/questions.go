package interview

// The intake phase always asks exactly these questions, in this order,
// regardless of content.
var intakeQuestions = []struct {
	Key    string
	Prompt string
}{
	{"role", "What role are you interviewing for?"},
	{"tech_stack", "Which technologies and stack do you work with most?"},
	{"experience", "How many years of professional experience do you have?"},
	{"skills", "What key skills or topics would you like this interview to focus on?"},
	{"question_count", "How many interview questions would you like? Pick a number between 5 and 20."},
}

const greeting = "Welcome to your mock interview practice session. " +
	"Before we start, I'll ask a few quick questions to tailor the interview to you."

const closingMessage = "That completes your mock interview. Well done! " +
	"Your feedback report will be prepared from the full transcript."

// fallbackQuestions substitute for the remote service when generation fails.
// Keyed by interview type; selection is deterministic so a turn never stalls.
var fallbackQuestions = map[string][]string{
	"technical": {
		"Walk me through a technically challenging project you worked on recently. What made it hard?",
		"How do you approach debugging a production issue you cannot reproduce locally?",
		"Describe a time you had to make a trade-off between code quality and delivery speed.",
		"How do you design for failure in a distributed system?",
		"Tell me about a piece of code you are proud of and why.",
	},
	"behavioral": {
		"Tell me about a time you disagreed with a teammate. How did you resolve it?",
		"Describe a situation where you had to deliver under significant time pressure.",
		"Tell me about a mistake you made at work and what you learned from it.",
		"How do you handle receiving critical feedback?",
		"Describe a time you had to influence a decision without formal authority.",
	},
	"system_design": {
		"How would you design a URL shortening service that handles millions of requests per day?",
		"Design a real-time chat system. What are the main components and trade-offs?",
		"How would you build a rate limiter for a public API?",
		"Design a notification system that supports email, SMS and push.",
		"How would you approach sharding a relational database that outgrew one node?",
	},
}

var defaultFallbacks = []string{
	"Tell me about a recent project you are proud of and your specific contribution.",
	"What is the hardest problem you have solved in your career so far?",
	"How do you keep your skills current in a fast-moving field?",
	"Describe your ideal engineering team and your role in it.",
	"What attracted you to this role, and what would success look like for you?",
}

func fallbackQuestion(interviewType string, turn int) string {
	questions, ok := fallbackQuestions[interviewType]
	if !ok || len(questions) == 0 {
		questions = defaultFallbacks
	}
	if turn < 1 {
		turn = 1
	}
	return questions[(turn-1)%len(questions)]
}
