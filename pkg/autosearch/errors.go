package autosearch

import "errors"

var (
	// ErrProvider marks a search backend failure. The engine absorbs it.
	ErrProvider = errors.New("search provider failed")
	// ErrClassification means the classifier output could not be mapped to a Category.
	ErrClassification = errors.New("query classification failed")
	// ErrEvaluation means the evaluator output was malformed or referenced positions outside the batch.
	ErrEvaluation = errors.New("result evaluation failed")
	// ErrSession wraps every failure that terminates a session.
	ErrSession    = errors.New("search session failed")
	ErrEmptyQuery = errors.New("query is empty")
)

// errorMessage is the only failure detail sent to the event sink.
const errorMessage = "An error occurred during search"
