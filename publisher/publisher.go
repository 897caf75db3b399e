// Package publisher turns two plain-text strings into a two-post thread with
// clickable link annotations. It talks to the data server through the
// RecordCreator interface so it never handles tokens or proofs itself.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// FeedPostCollection is the record collection threads are written to.
const FeedPostCollection = "app.bsky.feed.post"

// PostRef identifies a created record by its location and content hash.
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// RecordCreator writes one record to the account's repository.
type RecordCreator interface {
	CreateRecord(ctx context.Context, collection string, record any) (PostRef, error)
}

// ThreadRefs holds the identities of both posts of a published thread.
type ThreadRefs struct {
	First PostRef
	Reply PostRef
}

// PartialThreadError reports a thread whose first post was recorded but whose
// reply was not. The first post stays published; re-invoking PostThread will
// produce a duplicate first post.
type PartialThreadError struct {
	First PostRef
	Err   error
}

func (e *PartialThreadError) Error() string {
	return fmt.Sprintf("thread reply failed after first post %s: %v", e.First.URI, e.Err)
}

func (e *PartialThreadError) Unwrap() error {
	return e.Err
}

type feedPost struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Facets    []Facet   `json:"facets,omitempty"`
	Reply     *replyRef `json:"reply,omitempty"`
}

type replyRef struct {
	Root   PostRef `json:"root"`
	Parent PostRef `json:"parent"`
}

// Publisher composes and submits two-post threads.
type Publisher struct {
	nowTime func() time.Time
}

// Option modifies a Publisher instance.
type Option func(*Publisher)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Publisher) {
		p.nowTime = nowFunc
	}
}

func New(options ...Option) *Publisher {
	p := &Publisher{
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// PostThread publishes firstText and then secondText as a reply to it. Both
// texts must be non-empty and already within the provider's length limit;
// PostThread never truncates. Each post is timestamped at its own submission.
// There is no rollback: if the reply fails the first post remains published
// and the error is a *PartialThreadError naming it.
func (p *Publisher) PostThread(ctx context.Context, creator RecordCreator, firstText, secondText string) (*ThreadRefs, error) {
	if firstText == "" {
		return nil, errors.New("[Publisher.PostThread] first post text is empty")
	}
	if secondText == "" {
		return nil, errors.New("[Publisher.PostThread] second post text is empty")
	}

	first, err := creator.CreateRecord(ctx, FeedPostCollection, feedPost{
		Type:      FeedPostCollection,
		Text:      firstText,
		CreatedAt: p.nowTime().UTC().Format(time.RFC3339),
		Facets:    DetectLinkFacets(firstText),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Publisher.PostThread] create first post")
	}

	// A two-post thread replies to its own first post, so root and parent
	// are the same reference.
	reply, err := creator.CreateRecord(ctx, FeedPostCollection, feedPost{
		Type:      FeedPostCollection,
		Text:      secondText,
		CreatedAt: p.nowTime().UTC().Format(time.RFC3339),
		Facets:    DetectLinkFacets(secondText),
		Reply:     &replyRef{Root: first, Parent: first},
	})
	if err != nil {
		return nil, &PartialThreadError{First: first, Err: err}
	}

	return &ThreadRefs{First: first, Reply: reply}, nil
}
