package question

import "github.com/pallavi191/codecraft-sub001/internal/domain"

// seedQuestions is the compiled-in bank used when no database is wired.
// Categories match the Rapid Fire mix: logic, syntax, data structures,
// algorithms.
var seedQuestions = []domain.Question{
	{
		QuestionID: "q-logic-001",
		Text:       "A function returns true for even numbers. What does it return for 0?",
		Options: []domain.Option{
			{Text: "true", IsCorrect: true},
			{Text: "false"},
			{Text: "undefined behavior"},
			{Text: "it depends on the language"},
		},
		Category:    "logic",
		Difficulty:  "easy",
		Explanation: "0 is divisible by 2, so it is even.",
	},
	{
		QuestionID: "q-logic-002",
		Text:       "If !(a && b) is true, which must hold?",
		Options: []domain.Option{
			{Text: "!a || !b", IsCorrect: true},
			{Text: "!a && !b"},
			{Text: "a || b"},
			{Text: "a == b"},
		},
		Category:    "logic",
		Difficulty:  "easy",
		Explanation: "De Morgan's law.",
	},
	{
		QuestionID: "q-logic-003",
		Text:       "A loop halves n each iteration until n <= 1. Starting at n=64, how many iterations run?",
		Options: []domain.Option{
			{Text: "6", IsCorrect: true},
			{Text: "5"},
			{Text: "7"},
			{Text: "64"},
		},
		Category:    "logic",
		Difficulty:  "medium",
		Explanation: "64 -> 32 -> 16 -> 8 -> 4 -> 2 -> 1 is six halvings.",
	},
	{
		QuestionID: "q-syntax-001",
		Text:       "Which declaration creates a map from string to int in Go?",
		Options: []domain.Option{
			{Text: "m := map[string]int{}", IsCorrect: true},
			{Text: "m := map<string, int>{}"},
			{Text: "m := new map[string]int"},
			{Text: "m := dict(string, int)"},
		},
		Category:   "syntax",
		Difficulty: "easy",
	},
	{
		QuestionID: "q-syntax-002",
		Text:       "What does a bare `return` do in a function with named result parameters?",
		Options: []domain.Option{
			{Text: "returns the current values of the named results", IsCorrect: true},
			{Text: "returns zero values"},
			{Text: "fails to compile"},
			{Text: "panics at runtime"},
		},
		Category:   "syntax",
		Difficulty: "medium",
	},
	{
		QuestionID: "q-syntax-003",
		Text:       "Which of these is NOT a valid way to start a goroutine?",
		Options: []domain.Option{
			{Text: "go func f() {}", IsCorrect: true},
			{Text: "go f()"},
			{Text: "go func() {}()"},
			{Text: "go obj.method()"},
		},
		Category:    "syntax",
		Difficulty:  "medium",
		Explanation: "go takes a call expression; a named function literal is not one.",
	},
	{
		QuestionID: "q-ds-001",
		Text:       "Average-case lookup in a hash table is:",
		Options: []domain.Option{
			{Text: "O(1)", IsCorrect: true},
			{Text: "O(log n)"},
			{Text: "O(n)"},
			{Text: "O(n log n)"},
		},
		Category:   "data-structures",
		Difficulty: "easy",
	},
	{
		QuestionID: "q-ds-002",
		Text:       "Which structure gives O(1) insertion at both ends?",
		Options: []domain.Option{
			{Text: "doubly linked list", IsCorrect: true},
			{Text: "dynamic array"},
			{Text: "binary heap"},
			{Text: "balanced BST"},
		},
		Category:   "data-structures",
		Difficulty: "medium",
	},
	{
		QuestionID: "q-ds-003",
		Text:       "A stack processes: push 1, push 2, pop, push 3, pop, pop. What is popped last?",
		Options: []domain.Option{
			{Text: "1", IsCorrect: true},
			{Text: "2"},
			{Text: "3"},
			{Text: "nothing, the stack is empty"},
		},
		Category:   "data-structures",
		Difficulty: "easy",
	},
	{
		QuestionID: "q-algo-001",
		Text:       "Binary search on a sorted array of 1_000_000 elements needs at most roughly how many comparisons?",
		Options: []domain.Option{
			{Text: "20", IsCorrect: true},
			{Text: "1000"},
			{Text: "500000"},
			{Text: "100"},
		},
		Category:    "algorithms",
		Difficulty:  "easy",
		Explanation: "log2(1e6) is slightly under 20.",
	},
	{
		QuestionID: "q-algo-002",
		Text:       "Which sorting algorithm is stable and O(n log n) worst case?",
		Options: []domain.Option{
			{Text: "merge sort", IsCorrect: true},
			{Text: "quicksort"},
			{Text: "heapsort"},
			{Text: "selection sort"},
		},
		Category:   "algorithms",
		Difficulty: "medium",
	},
	{
		QuestionID: "q-algo-003",
		Text:       "Dijkstra's algorithm fails when the graph has:",
		Options: []domain.Option{
			{Text: "negative edge weights", IsCorrect: true},
			{Text: "cycles"},
			{Text: "more edges than nodes"},
			{Text: "disconnected components"},
		},
		Category:   "algorithms",
		Difficulty: "medium",
	},
}
