package validate

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/llm"
	"github.com/kastelov/lexitrain/internal/store"
)

// ModelGrader is the model-backed grading level. *llm.Gateway implements it.
type ModelGrader interface {
	Validate(ctx context.Context, q *llm.ValidationQuery) (*llm.Verdict, error)
}

// Request is one answer to grade. Accepted holds every translation the
// question treats as correct, primary first.
type Request struct {
	WordID      string
	Direction   store.Direction
	Question    string
	Accepted    []string
	Answer      string
	SrcLang     string
	TgtLang     string
	CommentLang string
}

// Result is the grading outcome. Method records the cheapest level that
// produced the verdict.
type Result struct {
	Correct  bool
	Method   store.Method
	Feedback string
}

// Validator grades answers in three escalating levels: exact match on the
// normalized strings, edit distance within the fuzzy threshold, then a model
// judgement. Cheaper levels always win; the model is only consulted when both
// string levels reject.
type Validator struct {
	grader         ModelGrader
	fuzzyThreshold int
	logger         *zap.Logger
}

// New creates a validator. fuzzyThreshold is the maximum edit distance still
// accepted as a typo.
func New(grader ModelGrader, fuzzyThreshold int, logger *zap.Logger) *Validator {
	return &Validator{
		grader:         grader,
		fuzzyThreshold: fuzzyThreshold,
		logger:         logger,
	}
}

// Check grades an answer. When the model level is unreachable or returns a
// malformed verdict the answer is rejected rather than guessed correct, and
// the feedback names the expected answer.
func (v *Validator) Check(ctx context.Context, req *Request) Result {
	answerNorm := Normalize(req.Answer)
	if answerNorm == "" || len(req.Accepted) == 0 {
		return v.reject(req)
	}

	// Level 1: exact match against any accepted translation.
	for _, acc := range req.Accepted {
		if answerNorm == Normalize(acc) {
			return Result{Correct: true, Method: store.MethodExact}
		}
	}

	// Level 2: edit distance. Distance zero is unreachable here since exact
	// match already ran on the same normalized strings.
	closest := Normalize(req.Accepted[0])
	closestDist := levenshtein.ComputeDistance(answerNorm, closest)
	for _, acc := range req.Accepted[1:] {
		accNorm := Normalize(acc)
		if d := levenshtein.ComputeDistance(answerNorm, accNorm); d < closestDist {
			closest, closestDist = accNorm, d
		}
	}
	if closestDist <= v.fuzzyThreshold {
		return Result{
			Correct:  true,
			Method:   store.MethodFuzzy,
			Feedback: fmt.Sprintf("✓ (%s)", req.Accepted[0]),
		}
	}

	// Level 3: model judgement.
	verdict, err := v.grader.Validate(ctx, &llm.ValidationQuery{
		WordID:       req.WordID,
		Direction:    req.Direction,
		Question:     req.Question,
		Expected:     req.Accepted[0],
		Answer:       req.Answer,
		ExpectedNorm: closest,
		AnswerNorm:   answerNorm,
		SrcLang:      req.SrcLang,
		TgtLang:      req.TgtLang,
		CommentLang:  req.CommentLang,
	})
	if err != nil {
		v.logger.Warn("model grading unavailable, rejecting conservatively",
			zap.String("word_id", req.WordID), zap.Error(err))
		return v.reject(req)
	}
	return Result{Correct: verdict.Correct, Method: store.MethodModel, Feedback: verdict.Comment}
}

// reject is the conservative verdict used when no level can accept the
// answer. It is deterministic, so it is recorded as an exact-level result.
func (v *Validator) reject(req *Request) Result {
	expected := ""
	if len(req.Accepted) > 0 {
		expected = req.Accepted[0]
	}
	return Result{
		Correct:  false,
		Method:   store.MethodExact,
		Feedback: fmt.Sprintf("expected: %s", expected),
	}
}
