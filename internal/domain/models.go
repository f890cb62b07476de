package domain

import "time"

// Role distinguishes regular test takers from administrators.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegistrationProfile is the candidate account held while the email code is
// outstanding. The password is already hashed by the caller.
type RegistrationProfile struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
}

// PendingRegistration is an unverified registration keyed by an opaque id.
// It lives only in the pending-code store and is destroyed on verification,
// replaced in place on resend, or dropped by the expiry sweep.
type PendingRegistration struct {
	ID        string              `json:"id"`
	Profile   RegistrationProfile `json:"profile"`
	Code      string              `json:"code"`
	CreatedAt time.Time           `json:"createdAt"`
}

// PendingPasswordReset is an outstanding password-reset request. Verified is
// set once the code has been checked; consuming the reset requires it.
type PendingPasswordReset struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question models an MCQ question with exactly one correct answer index.
type Question struct {
	ID                 int64    `json:"id"`
	TestID             int64    `json:"testId"`
	Text               string   `json:"text"`
	Answers            []string `json:"answers"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Type               string   `json:"type"`
}

// Test is an authored assessment with its questions.
type Test struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	AdminID          int64      `json:"adminId"`
	CreatedAt        time.Time  `json:"createdAt"`
	Questions        []Question `json:"questions"`
}

// TestAttempt is one user's run through a test. CompletedAt is nil while the
// attempt is in progress and, once set, never changes.
type TestAttempt struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"userId"`
	TestID      int64          `json:"testId"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt"`
	Percentage  float64        `json:"percentage"`
	Answers     []AnswerRecord `json:"answers"`
}

// Completed reports whether the attempt reached its terminal state.
func (a TestAttempt) Completed() bool {
	return a.CompletedAt != nil
}

// AnswerRecord captures a single submitted answer. Records are immutable
// after creation; a question can be answered at most once per attempt.
type AnswerRecord struct {
	ID            int64     `json:"id"`
	AttemptID     int64     `json:"attemptId"`
	QuestionID    int64     `json:"questionId"`
	SelectedIndex *int      `json:"selectedIndex"`
	Correct       bool      `json:"correct"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// AttemptUpdate is a snapshot-friendly view of attempt progress pushed to
// live result subscribers.
type AttemptUpdate struct {
	TestID      int64      `json:"testId"`
	AttemptID   int64      `json:"attemptId"`
	UserID      int64      `json:"userId"`
	Percentage  float64    `json:"percentage"`
	Answered    int        `json:"answered"`
	CompletedAt *time.Time `json:"completedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
