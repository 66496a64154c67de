package store

import "time"

// Status is the learning state of a word in a profile's vocabulary.
type Status string

const (
	StatusNew       Status = "new"
	StatusLearning  Status = "learning"
	StatusReviewing Status = "reviewing"
	StatusMastered  Status = "mastered"
)

// Direction is the translation direction of a question.
type Direction string

const (
	NativeToForeign Direction = "native_to_foreign"
	ForeignToNative Direction = "foreign_to_native"
)

// TestType is how a question is answered.
type TestType string

const (
	TestChoice TestType = "choice"
	TestInput  TestType = "input"
)

// Method is the validation level that decided an answer.
type Method string

const (
	MethodExact Method = "exact"
	MethodFuzzy Method = "fuzzy"
	MethodModel Method = "model"
)

// User is a chat identity with notification preferences.
type User struct {
	ID              string
	Platform        string
	ExternalID      string
	ChannelID       string
	NativeLang      string
	InterfaceLang   string
	TZ              string
	NotificationsOn bool
	LastActiveAt    time.Time
	CreatedAt       time.Time
}

// Profile is a language-learning profile; at most one active per user.
type Profile struct {
	ID         string
	UserID     string
	TargetLang string
	CEFR       string
	Active     bool
	CreatedAt  time.Time
}

// Example is a usage example pair.
type Example struct {
	Src string `json:"src"`
	Tgt string `json:"tgt"`
}

// Word is a shared dictionary entry; (text, language) unique, text lowercase.
type Word struct {
	ID           string
	Text         string
	Language     string
	CEFR         string
	Translations map[string][]string
	Examples     []Example
	Forms        map[string]string
	FreqRank     *int
	CreatedAt    time.Time
}

// UserWord is the per-profile learning state of a word.
type UserWord struct {
	ID             string
	ProfileID      string
	WordID         string
	Status         Status
	AddedAt        time.Time
	LastReviewedAt *time.Time
	NextReviewAt   *time.Time
	IntervalDays   int
	EF             float64
}

// WordStat is a counter per (user_word, direction, test_type) facet.
type WordStat struct {
	UserWordID    string
	Direction     Direction
	TestType      TestType
	StreakCorrect int
	TotalAttempts int
	TotalCorrect  int
	TotalErrors   int
}

// Lesson is a quiz session over a fixed word queue.
type Lesson struct {
	ID           string
	ProfileID    string
	StartedAt    time.Time
	CompletedAt  *time.Time
	PlannedCount int
	Correct      int
	Incorrect    int
	WordQueue    []string // ordered user_word ids
}

// LessonAttempt is an append-only answer record.
type LessonAttempt struct {
	ID          int64
	LessonID    string
	UserWordID  string
	Direction   Direction
	TestType    TestType
	UserAnswer  string
	Expected    string
	Correct     bool
	Method      Method
	AttemptedAt time.Time
}

// Candidate is a selector input row: a user word with its dictionary entry
// and per-facet stats, loaded eagerly in one query pass.
type Candidate struct {
	UserWord UserWord
	Word     Word
	Stats    []WordStat
}
