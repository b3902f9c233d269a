package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the transport layer can map them to statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindState
	KindInsufficientData
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindInsufficientData:
		return "insufficient_data"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by the core. Err optionally points at one
// of the sentinels below so callers can still use errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrSessionNotFound is returned when no incomplete session matches the user and id.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Msg: "quiz session not found"}
	// ErrQuestionNotInSession indicates the question was not sampled into the session.
	ErrQuestionNotInSession = &Error{Kind: KindValidation, Msg: "question is not part of this session"}
	// ErrAnswerNotInQuestion indicates the answer belongs to another question.
	ErrAnswerNotInQuestion = &Error{Kind: KindValidation, Msg: "answer does not belong to question"}
	// ErrAlreadyCompleted is returned when completing or answering a finished session.
	ErrAlreadyCompleted = &Error{Kind: KindState, Msg: "quiz session already completed"}
	// ErrCategoryInactive prevents new sessions against a disabled category.
	ErrCategoryInactive = &Error{Kind: KindState, Msg: "category is not active"}
	// ErrInsufficientQuestions is returned when fewer than the minimum questions qualify.
	ErrInsufficientQuestions = &Error{Kind: KindInsufficientData, Msg: "not enough questions available"}
	// ErrCategoryNotFound indicates an unknown category id.
	ErrCategoryNotFound = &Error{Kind: KindNotFound, Msg: "category not found"}
	// ErrQuestionNotFound indicates an unknown question id.
	ErrQuestionNotFound = &Error{Kind: KindNotFound, Msg: "question not found"}
	// ErrAnswerNotFound indicates an unknown answer id.
	ErrAnswerNotFound = &Error{Kind: KindNotFound, Msg: "answer not found"}
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = &Error{Kind: KindNotFound, Msg: "user not found"}
	// ErrDuplicate marks a unique name, slug or email collision.
	ErrDuplicate = &Error{Kind: KindValidation, Msg: "record already exists"}
	// ErrCategoryHasQuestions blocks deleting a category that still owns questions.
	ErrCategoryHasQuestions = &Error{Kind: KindState, Msg: "category still has questions"}
	// ErrQuestionInUse blocks deleting a question that quiz sessions were dealt.
	ErrQuestionInUse = &Error{Kind: KindState, Msg: "question is referenced by quiz sessions"}
)

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Duplicate builds a validation error wrapping ErrDuplicate.
func Duplicate(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...), Err: ErrDuplicate}
}

// InsufficientQuestions reports which category/filter combination was under-supplied.
func InsufficientQuestions(categoryID int64, difficulty Difficulty, available, required int) error {
	filter := "any difficulty"
	if difficulty != "" {
		filter = "difficulty " + string(difficulty)
	}
	return &Error{
		Kind: KindInsufficientData,
		Msg:  fmt.Sprintf("category %d (%s) has %d active questions, need at least %d", categoryID, filter, available, required),
		Err:  ErrInsufficientQuestions,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
