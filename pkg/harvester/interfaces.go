package harvester

import (
	"context"

	"bicodown/pkg/bilibili"
	"bicodown/pkg/models"
)

// CommentSource defines the reply endpoints the harvester pages through
type CommentSource interface {
	FetchCommentCount(ctx context.Context, oid int64) (int, error)
	FetchComments(ctx context.Context, q bilibili.CommentQuery) (*bilibili.CommentPage, error)
	FetchSubReplies(ctx context.Context, oid, root int64, page int) ([]bilibili.Reply, error)
}

// ContentResolver defines the metadata endpoints used to turn an identifier
// into an oid and a title
type ContentResolver interface {
	FetchVideoInfo(ctx context.Context, bvid string) (*bilibili.ContentInfo, error)
	FetchEpisodeInfo(ctx context.Context, epID int64) (*bilibili.ContentInfo, error)
	FetchSeasonInfo(ctx context.Context, seasonID int64) (*bilibili.ContentInfo, error)
}

// Source is everything a harvest needs from the platform. *bilibili.Client
// satisfies it.
type Source interface {
	CommentSource
	ContentResolver
}

// Sink receives each deduplicated page batch
type Sink interface {
	Upsert(id string, batch []models.Comment, dir, title string, overwrite bool) (int, error)
}

// Checkpointer records progress after every persisted batch
type Checkpointer interface {
	Record(page int, cursor string, rpids []int64, downloaded int) error
}

// ImageQueue accepts persisted batches whose pictures should be fetched
type ImageQueue interface {
	Enqueue(ctx context.Context, batch []models.Comment) int
}

// Metrics is notified of pagination outcomes
type Metrics interface {
	PageFetched()
	PageSkipped()
	EmptyPage()
	Retry()
	CommentsPersisted(n int)
}

type nopMetrics struct{}

func (nopMetrics) PageFetched()          {}
func (nopMetrics) PageSkipped()          {}
func (nopMetrics) EmptyPage()            {}
func (nopMetrics) Retry()                {}
func (nopMetrics) CommentsPersisted(int) {}
