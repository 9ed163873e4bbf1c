package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsAggregator/internal/domain"
)

// Request carries all parameters required to collect one source.
type Request struct {
	Source domain.Source
	Cutoff time.Time
}

// Result is what a scanner managed to collect. Errors never abort a scan;
// they are reported alongside whatever items were parsed.
type Result struct {
	Items  []domain.RawItem
	Errors []domain.CollectionError
}

// Scanner collects raw items from one kind of source (feeds, arXiv listings, ...).
type Scanner interface {
	Kind() domain.SourceKind
	Scan(ctx context.Context, req Request) Result
}

// ErrNoScanner is returned by Resolve for a kind nothing was registered for.
var ErrNoScanner = errors.New("scanner is not registered")

// Registry keeps a mapping from source kinds to their scanners.
type Registry struct {
	scanners map[domain.SourceKind]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.SourceKind]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns a scanner by kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoScanner, kind)
}

// NewError builds a CollectionError stamped with the current time.
func NewError(src domain.Source, kind string, err error) domain.CollectionError {
	return domain.CollectionError{
		SourceKind:   src.Kind,
		SourceID:     src.ID,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		Timestamp:    time.Now().UTC(),
	}
}

// Error kinds reported in CollectionError.ErrorKind.
const (
	ErrorKindHTTPStatus   = "HTTPStatusError"
	ErrorKindRequest      = "RequestError"
	ErrorKindParse        = "ParseError"
	ErrorKindTimeout      = "Timeout"
	ErrorKindUnknownKind  = "UnknownSourceKind"
	ErrorKindPanic        = "Panic"
	ErrorKindInvalidInput = "InvalidSource"
)
